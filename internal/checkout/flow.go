package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/cart"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/inventory"
)

// Flow sequences one checkout: empty-cart short-circuit, identity resolution,
// cart reconciliation when a conflict exists, address entry, inventory
// confirmation, payment, completion. A failed stage re-enters itself; no
// stage silently advances past a failure.
type Flow struct {
	sessionID  string
	carts      cart.Store
	reconciler *cart.Reconciler
	gate       *inventory.Gate
	resolver   *address.Resolver
	payment    PaymentClient
	log        *logrus.Entry

	mu       sync.Mutex
	stage    domain.Stage
	userID   string
	customer domain.CustomerInfo
}

func (f *Flow) Stage() domain.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

func (f *Flow) Customer() domain.CustomerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customer
}

// PendingMerge returns the unresolved conflict snapshot, or nil.
func (f *Flow) PendingMerge() *domain.CartMergeData {
	return f.reconciler.Pending()
}

// ResolveIdentity enters or re-enters the flow. user is nil for guest
// checkout. Logging in mid-checkout rewinds the flow to identity resolution
// so a guest/user cart conflict is detected no matter how far the guest got;
// a repeat call with the same identity past that point is a no-op. When a
// conflict exists, the returned CartMergeData is non-nil and the flow waits
// on ResolveMerge before advancing.
func (f *Flow) ResolveIdentity(ctx context.Context, user *domain.SessionUser) (*domain.CartMergeData, error) {
	f.mu.Lock()
	stage := f.stage
	sameIdentity := (user == nil && f.userID == "") || (user != nil && user.ID == f.userID)
	f.mu.Unlock()

	if stage == domain.StagePaymentCaptured || stage == domain.StageComplete {
		return nil, ErrIllegalStage
	}
	if sameIdentity {
		switch stage {
		case domain.StageCartReconciled, domain.StageAddressReady, domain.StageInventoryConfirmed:
			// Identity already resolved; keep the shopper's position.
			return nil, nil
		}
	}

	empty, err := f.cartIsEmpty(ctx, user)
	if err != nil {
		return nil, err
	}
	if empty {
		f.mu.Lock()
		f.stage = domain.StageEmptyCart
		f.mu.Unlock()
		return nil, ErrEmptyCart
	}

	f.mu.Lock()
	f.stage = domain.StageIdentityResolved
	if user != nil {
		f.userID = user.ID
	}
	userID := f.userID
	f.mu.Unlock()

	if user == nil {
		// Guests have a single cart; nothing to reconcile.
		f.advance(domain.StageCartReconciled)
		return nil, nil
	}

	data, err := f.reconciler.Detect(ctx, f.sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("cart conflict detection failed: %w", err)
	}
	if data != nil {
		return data, nil
	}

	f.advance(domain.StageCartReconciled)
	return nil, nil
}

// ResolveMerge completes a detected conflict: confirm combines both carts,
// cancel keeps only the saved cart. Either way the flow advances once the
// reconciler succeeds.
func (f *Flow) ResolveMerge(ctx context.Context, confirm bool) (*domain.Cart, error) {
	f.mu.Lock()
	if f.stage != domain.StageIdentityResolved {
		f.mu.Unlock()
		return nil, ErrNoMergeNeeded
	}
	f.mu.Unlock()

	var (
		resolved *domain.Cart
		err      error
	)
	if confirm {
		resolved, err = f.reconciler.ConfirmMerge(ctx)
	} else {
		resolved, err = f.reconciler.Cancel(ctx)
	}
	if err != nil {
		return nil, err
	}

	f.advance(domain.StageCartReconciled)
	return resolved, nil
}

// UpdateCountry records a country change on the shipping address and returns
// the states now selectable. Does not advance the flow.
func (f *Flow) UpdateCountry(countryCode string) []domain.StateOption {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolver.UpdateAvailableStates(&f.customer, countryCode)
}

// ChangeZip records a zip change, resolving city/state when supported.
// The lookup runs against a copy of the address so concurrent state reads
// never observe a half-written one. Does not advance the flow.
func (f *Flow) ChangeZip(ctx context.Context, zip, countryCode string) (*address.ZipResolution, error) {
	f.mu.Lock()
	scratch := f.customer
	f.mu.Unlock()

	resolution, err := f.resolver.HandleZipCodeChange(ctx, &scratch, zip, countryCode)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.customer.Zip = scratch.Zip
	if resolution != nil {
		f.customer.City = resolution.City
		if resolution.State != "" {
			f.customer.State = resolution.State
		}
	}
	f.mu.Unlock()
	return resolution, nil
}

// SubmitAddress finalizes the shipping address and advances to AddressReady.
func (f *Flow) SubmitAddress(info domain.CustomerInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !domain.CanTransitionTo(f.stage, domain.StageAddressReady) && f.stage != domain.StageAddressReady {
		return f.blockedErr()
	}

	states := f.resolver.UpdateAvailableStates(&info, info.Country)
	if info.Name == "" || info.Email == "" || info.Address1 == "" || info.City == "" || info.Zip == "" || info.Country == "" {
		return ErrIncompleteAddress
	}
	if len(states) > 0 && info.State == "" {
		return ErrIncompleteAddress
	}

	f.customer = info
	f.stage = domain.StageAddressReady
	return nil
}

// ConfirmInventory runs the pre-payment availability gate on the active cart.
// An unavailable (or unverifiable) result keeps the flow at AddressReady;
// the caller returns the user to cart editing.
func (f *Flow) ConfirmInventory(ctx context.Context) (*domain.AvailabilityResult, error) {
	f.mu.Lock()
	if !domain.CanTransitionTo(f.stage, domain.StageInventoryConfirmed) && f.stage != domain.StageInventoryConfirmed {
		err := f.blockedErr()
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	active, err := f.activeCart(ctx)
	if err != nil {
		return nil, err
	}

	result, err := f.gate.CheckAvailability(ctx, active.Items)
	if err != nil {
		return nil, err
	}
	if result.Available {
		f.advance(domain.StageInventoryConfirmed)
	}
	return result, nil
}

// Pay charges the cart total through the external gateway, then completes the
// checkout: the active cart is cleared and an order number is emitted.
func (f *Flow) Pay(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	if !domain.CanTransitionTo(f.stage, domain.StagePaymentCaptured) {
		err := f.blockedErr()
		f.mu.Unlock()
		return nil, err
	}
	customer := f.customer
	f.mu.Unlock()

	active, err := f.activeCart(ctx)
	if err != nil {
		return nil, err
	}
	total := active.Total()

	charge, err := f.payment.Charge(ctx, total, "USD", &customer)
	if err != nil {
		return nil, fmt.Errorf("payment failed: %w", err)
	}
	if !charge.Succeeded {
		return nil, fmt.Errorf("payment declined: %s", charge.Reason)
	}

	f.advance(domain.StagePaymentCaptured)

	// Payment is captured; cart cleanup failures must not un-complete the
	// order, only get logged.
	if err := f.clearActiveCart(ctx); err != nil {
		f.log.WithError(err).Error("failed to clear cart after payment")
	}
	f.gate.Reset()

	result := &Result{
		OrderNumber: uuid.New().String(),
		Total:       total,
	}
	f.advance(domain.StageComplete)
	f.log.WithFields(logrus.Fields{
		"order_number": result.OrderNumber,
		"total":        result.Total,
	}).Info("checkout complete")
	return result, nil
}

// blockedErr distinguishes "you skipped a stage" from "a cart conflict is
// still waiting on you". Caller holds f.mu.
func (f *Flow) blockedErr() error {
	if f.stage == domain.StageIdentityResolved && f.reconciler.Pending() != nil {
		return ErrMergePending
	}
	return ErrIllegalStage
}

func (f *Flow) advance(to domain.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stage = to
}

func (f *Flow) cartIsEmpty(ctx context.Context, user *domain.SessionUser) (bool, error) {
	guest, err := f.carts.GetGuestCart(ctx, f.sessionID)
	if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
		return false, err
	}
	if guest.ItemCount() > 0 {
		return false, nil
	}
	if user == nil {
		return true, nil
	}
	saved, err := f.carts.GetUserCart(ctx, user.ID)
	if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
		return false, err
	}
	return saved.ItemCount() == 0, nil
}

func (f *Flow) activeCart(ctx context.Context) (*domain.Cart, error) {
	f.mu.Lock()
	userID := f.userID
	f.mu.Unlock()

	if userID != "" {
		return f.carts.GetUserCart(ctx, userID)
	}
	return f.carts.GetGuestCart(ctx, f.sessionID)
}

func (f *Flow) clearActiveCart(ctx context.Context) error {
	f.mu.Lock()
	userID := f.userID
	f.mu.Unlock()

	if userID != "" {
		return f.carts.DeleteUserCart(ctx, userID)
	}
	return f.carts.DeleteGuestCart(ctx, f.sessionID)
}
