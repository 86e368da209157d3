package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

// State is the reconciliation position for one login. Transitions:
// Idle -> Detected -> Merging -> (Resolved | back to Detected on failure).
type State string

const (
	StateIdle     State = "IDLE"
	StateDetected State = "DETECTED"
	StateMerging  State = "MERGING"
	StateResolved State = "RESOLVED"
)

var (
	ErrMergeInFlight = errors.New("cart merge already in flight")
	ErrNoConflict    = errors.New("no cart conflict to resolve")
)

// Reconciler resolves the guest/user cart conflict that appears when a user
// logs in mid-checkout with items in both carts. Merge policy: items sharing
// a variant id are combined by summing quantities; distinct variants stay as
// separate lines.
type Reconciler struct {
	store Store
	log   *logrus.Entry

	mu        sync.Mutex
	state     State
	pending   *domain.CartMergeData
	sessionID string
	userID    string
}

func NewReconciler(store Store, log *logrus.Entry) *Reconciler {
	return &Reconciler{
		store: store,
		log:   log,
		state: StateIdle,
	}
}

// State returns the current reconciliation state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Detect inspects both carts after identity resolution. When both hold items
// it enters Detected and returns the conflict snapshot for the merge prompt.
// When only the guest cart holds items, the guest cart is adopted as the
// user's cart and no conflict is reported.
func (r *Reconciler) Detect(ctx context.Context, sessionID, userID string) (*domain.CartMergeData, error) {
	guest, err := r.store.GetGuestCart(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}
	saved, err := r.store.GetUserCart(ctx, userID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	guestCount := guest.ItemCount()
	savedCount := saved.ItemCount()

	if guestCount > 0 && savedCount > 0 {
		r.mu.Lock()
		r.state = StateDetected
		r.sessionID = sessionID
		r.userID = userID
		r.pending = &domain.CartMergeData{
			GuestCartCount: guestCount,
			UserCartCount:  savedCount,
		}
		pending := r.pending
		r.mu.Unlock()

		r.log.WithFields(logrus.Fields{
			"guest_count": guestCount,
			"user_count":  savedCount,
		}).Info("cart conflict detected")
		return pending, nil
	}

	// Store I/O happens outside the mutex so State and Pending stay
	// responsive while the adoption writes are in flight.
	if guestCount > 0 {
		// No saved cart: the guest cart simply becomes the user's cart.
		guest.OwnerKey = userID
		if err := r.store.SaveUserCart(ctx, userID, guest); err != nil {
			return nil, err
		}
		if err := r.store.DeleteGuestCart(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	r.resolve()
	return nil, nil
}

// Pending returns the unresolved conflict snapshot, or nil.
func (r *Reconciler) Pending() *domain.CartMergeData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// ConfirmMerge combines both carts into the single authoritative user cart
// and clears the guest cart. A failure re-enters Detected; no cart data is
// dropped.
func (r *Reconciler) ConfirmMerge(ctx context.Context) (*domain.Cart, error) {
	sessionID, userID, err := r.begin()
	if err != nil {
		return nil, err
	}

	merged, err := r.merge(ctx, sessionID, userID)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	r.resolve()
	return merged, nil
}

// Cancel discards the guest cart and keeps only the user's saved cart.
// A failure re-enters Detected.
func (r *Reconciler) Cancel(ctx context.Context) (*domain.Cart, error) {
	sessionID, userID, err := r.begin()
	if err != nil {
		return nil, err
	}

	if err := r.store.DeleteGuestCart(ctx, sessionID); err != nil {
		r.fail(err)
		return nil, err
	}

	saved, err := r.store.GetUserCart(ctx, userID)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	r.resolve()
	return saved, nil
}

func (r *Reconciler) begin() (sessionID, userID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateMerging:
		return "", "", ErrMergeInFlight
	case StateDetected:
		r.state = StateMerging
		return r.sessionID, r.userID, nil
	default:
		return "", "", ErrNoConflict
	}
}

func (r *Reconciler) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDetected
	r.log.WithError(err).Warn("cart reconciliation failed, conflict still pending")
}

func (r *Reconciler) resolve() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateResolved
	r.pending = nil
}

func (r *Reconciler) merge(ctx context.Context, sessionID, userID string) (*domain.Cart, error) {
	guest, err := r.store.GetGuestCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	saved, err := r.store.GetUserCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := &domain.Cart{
		OwnerKey:  userID,
		CreatedAt: saved.CreatedAt,
		UpdatedAt: time.Now(),
	}

	index := make(map[int64]int, len(saved.Items))
	for _, item := range saved.Items {
		index[item.VariantID] = len(merged.Items)
		merged.Items = append(merged.Items, item)
	}
	for _, item := range guest.Items {
		if at, exists := index[item.VariantID]; exists {
			merged.Items[at].Quantity += item.Quantity
			merged.Items[at].Subtotal = merged.Items[at].UnitPrice * float64(merged.Items[at].Quantity)
			continue
		}
		index[item.VariantID] = len(merged.Items)
		merged.Items = append(merged.Items, item)
	}

	if err := r.store.SaveUserCart(ctx, userID, merged); err != nil {
		return nil, err
	}
	if err := r.store.DeleteGuestCart(ctx, sessionID); err != nil {
		return nil, err
	}

	r.log.WithField("item_count", merged.ItemCount()).Info("carts merged")
	return merged, nil
}
