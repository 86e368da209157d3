package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/cart"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/inventory"
)

type mockCartStore struct {
	m     sync.Mutex
	guest map[string]*domain.Cart
	user  map[string]*domain.Cart
}

func newMockCartStore() *mockCartStore {
	return &mockCartStore{
		guest: make(map[string]*domain.Cart),
		user:  make(map[string]*domain.Cart),
	}
}

func (m *mockCartStore) GetGuestCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.guest[sessionID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return c, nil
}

func (m *mockCartStore) SaveGuestCart(_ context.Context, sessionID string, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.guest[sessionID] = c
	return nil
}

func (m *mockCartStore) DeleteGuestCart(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.guest, sessionID)
	return nil
}

func (m *mockCartStore) GetUserCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.user[userID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return c, nil
}

func (m *mockCartStore) SaveUserCart(_ context.Context, userID string, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.user[userID] = c
	return nil
}

func (m *mockCartStore) DeleteUserCart(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.user, userID)
	return nil
}

type mockChecker struct {
	m     sync.Mutex
	calls int
	resp  *inventory.AvailabilityResponse
	err   error
}

func (m *mockChecker) CheckVariantAvailability(context.Context, []inventory.VariantQuantity) (*inventory.AvailabilityResponse, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type mockRegionSource struct{}

func (mockRegionSource) Countries(context.Context) ([]domain.RegionReference, error) {
	return []domain.RegionReference{
		{Code: "US", Name: "United States", States: []domain.StateOption{
			{Code: "CA", Name: "California"},
			{Code: "NY", Name: "New York"},
		}},
	}, nil
}

func (mockRegionSource) LookupZip(context.Context, string, string) (*address.ZipResult, error) {
	return &address.ZipResult{City: "Beverly Hills", State: "CA"}, nil
}

type mockPayment struct {
	m      sync.Mutex
	calls  int
	result *ChargeResult
	err    error
}

func (m *mockPayment) Charge(_ context.Context, amount float64, _ string, _ *domain.CustomerInfo) (*ChargeResult, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

type fixture struct {
	store   *mockCartStore
	checker *mockChecker
	payment *mockPayment
	orch    *Orchestrator
}

func setup(t *testing.T) *fixture {
	store := newMockCartStore()
	checker := &mockChecker{resp: &inventory.AvailabilityResponse{Success: true, AllAvailable: true}}
	pay := &mockPayment{result: &ChargeResult{PaymentID: "pay-1", Succeeded: true}}
	resolver := address.NewResolver(mockRegionSource{}, testLog())
	_, err := resolver.LoadRegions(context.Background())
	require.NoError(t, err)

	return &fixture{
		store:   store,
		checker: checker,
		payment: pay,
		orch:    NewOrchestrator(store, checker, resolver, pay, testLog()),
	}
}

func item(variantID, fulfillmentID int64, qty int32, price float64) domain.CartItem {
	return domain.CartItem{
		VariantID:            variantID,
		FulfillmentVariantID: fulfillmentID,
		Quantity:             qty,
		UnitPrice:            price,
		Subtotal:             price * float64(qty),
	}
}

func validAddress() domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Address1: "1 Main St",
		City:     "Beverly Hills",
		State:    "CA",
		Zip:      "90210",
		Country:  "US",
	}
}

func TestResolveIdentity_EmptyCart_ShortCircuits(t *testing.T) {
	f := setup(t)
	flow := f.orch.Flow("s-1")

	_, err := flow.ResolveIdentity(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, domain.StageEmptyCart, flow.Stage())
}

func TestResolveIdentity_Guest_BypassesReconciliation(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 25)}}
	flow := f.orch.Flow("s-1")

	data, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, domain.StageCartReconciled, flow.Stage())
}

func TestResolveIdentity_Conflict_WaitsOnMerge(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{
		item(1, 101, 1, 10), item(2, 102, 1, 12), item(3, 0, 2, 8),
	}}
	f.store.user["u-1"] = &domain.Cart{Items: []domain.CartItem{
		item(4, 104, 1, 20), item(5, 0, 1, 15),
	}}
	flow := f.orch.Flow("s-1")

	data, err := flow.ResolveIdentity(context.Background(), &domain.SessionUser{ID: "u-1"})
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, 3, data.GuestCartCount)
	assert.Equal(t, 2, data.UserCartCount)
	assert.Equal(t, domain.StageIdentityResolved, flow.Stage())

	// Address cannot be submitted while the conflict is unresolved.
	err = flow.SubmitAddress(validAddress())
	assert.ErrorIs(t, err, ErrMergePending)

	merged, err := flow.ResolveMerge(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 5, merged.ItemCount())
	assert.Equal(t, domain.StageCartReconciled, flow.Stage())
}

func TestResolveMerge_Cancel_KeepsSavedCart(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	f.store.user["u-1"] = &domain.Cart{Items: []domain.CartItem{item(2, 102, 1, 20)}}
	flow := f.orch.Flow("s-1")

	_, err := flow.ResolveIdentity(context.Background(), &domain.SessionUser{ID: "u-1"})
	require.NoError(t, err)

	kept, err := flow.ResolveMerge(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, kept.ItemCount())
	assert.Equal(t, int64(2), kept.Items[0].VariantID)
}

func TestResolveMerge_WithoutConflict_Rejected(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")

	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)

	_, err = flow.ResolveMerge(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoMergeNeeded)
}

func TestSubmitAddress_Incomplete_StaysInPlace(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)

	info := validAddress()
	info.Address1 = ""
	err = flow.SubmitAddress(info)
	assert.ErrorIs(t, err, ErrIncompleteAddress)
	assert.Equal(t, domain.StageCartReconciled, flow.Stage())
}

func TestSubmitAddress_StateInvalidForCountry_Rejected(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)

	info := validAddress()
	info.State = "ZZ"
	err = flow.SubmitAddress(info)
	assert.ErrorIs(t, err, ErrIncompleteAddress, "invalid state is cleared, leaving the address incomplete")
}

func TestConfirmInventory_SkipAhead_Rejected(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)

	// Still at CartReconciled; inventory confirmation requires AddressReady.
	_, err = flow.ConfirmInventory(context.Background())
	assert.ErrorIs(t, err, ErrIllegalStage)
}

func TestConfirmInventory_Unavailable_StaysAtAddressReady(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 2, 10)}}
	f.checker.resp = &inventory.AvailabilityResponse{
		Success:          true,
		AllAvailable:     false,
		UnavailableCount: 1,
	}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, flow.SubmitAddress(validAddress()))

	result, err := flow.ConfirmInventory(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "1 item(s) unavailable", result.Message)
	assert.Equal(t, domain.StageAddressReady, flow.Stage())

	// A later re-check with restocked inventory advances the flow.
	f.checker.m.Lock()
	f.checker.resp = &inventory.AvailabilityResponse{Success: true, AllAvailable: true}
	f.checker.m.Unlock()
	result, err = flow.ConfirmInventory(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, domain.StageInventoryConfirmed, flow.Stage())
}

func TestPay_BeforeInventoryConfirmed_Rejected(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)

	_, err = flow.Pay(context.Background())
	assert.ErrorIs(t, err, ErrIllegalStage)
	assert.Equal(t, 0, f.payment.calls)
}

func TestPay_Declined_StaysAtInventoryConfirmed(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	f.payment.result = &ChargeResult{Succeeded: false, Reason: "card_declined"}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, flow.SubmitAddress(validAddress()))
	_, err = flow.ConfirmInventory(context.Background())
	require.NoError(t, err)

	_, err = flow.Pay(context.Background())
	require.ErrorContains(t, err, "card_declined")
	assert.Equal(t, domain.StageInventoryConfirmed, flow.Stage())

	// Retry after the decline succeeds.
	f.payment.m.Lock()
	f.payment.result = &ChargeResult{PaymentID: "pay-2", Succeeded: true}
	f.payment.m.Unlock()
	result, err := flow.Pay(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderNumber)
}

func TestFullFlow_GuestCheckout_Completes(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{
		item(1, 101, 2, 10), // 20
		item(2, 0, 1, 15),   // 15
	}}
	flow := f.orch.Flow("s-1")

	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, flow.SubmitAddress(validAddress()))

	availability, err := flow.ConfirmInventory(context.Background())
	require.NoError(t, err)
	require.True(t, availability.Available)

	result, err := flow.Pay(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderNumber)
	assert.Equal(t, float64(35), result.Total)
	assert.Equal(t, domain.StageComplete, flow.Stage())

	// The purchased cart is gone.
	_, err = f.store.GetGuestCart(context.Background(), "s-1")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestFullFlow_LoginWithMerge_Completes(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	f.store.user["u-1"] = &domain.Cart{Items: []domain.CartItem{item(2, 102, 1, 20)}}
	flow := f.orch.Flow("s-1")

	data, err := flow.ResolveIdentity(context.Background(), &domain.SessionUser{ID: "u-1"})
	require.NoError(t, err)
	require.NotNil(t, data)

	_, err = flow.ResolveMerge(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, flow.SubmitAddress(validAddress()))
	_, err = flow.ConfirmInventory(context.Background())
	require.NoError(t, err)

	result, err := flow.Pay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(30), result.Total)

	// The merged user cart was consumed by the completed order.
	_, err = f.store.GetUserCart(context.Background(), "u-1")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestResolveIdentity_LoginAfterGuestStart_DetectsConflict(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{
		item(1, 101, 1, 10), item(2, 102, 1, 12), item(3, 0, 2, 8),
	}}
	f.store.user["u-1"] = &domain.Cart{Items: []domain.CartItem{
		item(4, 104, 1, 20), item(5, 0, 1, 15),
	}}
	flow := f.orch.Flow("s-1")

	// A guest who opened checkout first is already past identity resolution.
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, domain.StageCartReconciled, flow.Stage())

	// Logging in now rewinds the flow and surfaces the conflict.
	data, err := flow.ResolveIdentity(context.Background(), &domain.SessionUser{ID: "u-1"})
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, 3, data.GuestCartCount)
	assert.Equal(t, 2, data.UserCartCount)
	assert.Equal(t, domain.StageIdentityResolved, flow.Stage())

	merged, err := flow.ResolveMerge(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 5, merged.ItemCount())
}

func TestResolveIdentity_EmptyCartThenItemsAdded_Recovers(t *testing.T) {
	f := setup(t)
	flow := f.orch.Flow("s-1")

	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Equal(t, domain.StageEmptyCart, flow.Stage())

	// The shopper goes back, adds an item, and reopens checkout.
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	_, err = flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCartReconciled, flow.Stage())
}

func TestResolveIdentity_RepeatGuestCall_KeepsPosition(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")

	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, flow.SubmitAddress(validAddress()))

	// A page reload re-enters the flow without losing the submitted address.
	data, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, domain.StageAddressReady, flow.Stage())
	assert.Equal(t, "Jane Doe", flow.Customer().Name)
}

func TestResolveIdentity_AfterCompletion_Rejected(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, flow.SubmitAddress(validAddress()))
	_, err = flow.ConfirmInventory(context.Background())
	require.NoError(t, err)
	_, err = flow.Pay(context.Background())
	require.NoError(t, err)

	_, err = flow.ResolveIdentity(context.Background(), nil)
	assert.ErrorIs(t, err, ErrIllegalStage)
}

func TestChangeZip_ConcurrentStateReads(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")
	_, err := flow.ResolveIdentity(context.Background(), nil)
	require.NoError(t, err)
	flow.UpdateCountry("US")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, err := flow.ChangeZip(context.Background(), "90210", "US")
			assert.NoError(t, err)
		}
	}()
	for i := 0; i < 100; i++ {
		_ = flow.Customer()
	}
	<-done

	customer := flow.Customer()
	assert.Equal(t, "90210", customer.Zip)
	assert.Equal(t, "Beverly Hills", customer.City)
	assert.Equal(t, "CA", customer.State)
}

func TestFlow_ReusedPerSession(t *testing.T) {
	f := setup(t)
	flow := f.orch.Flow("s-1")
	assert.Same(t, flow, f.orch.Flow("s-1"))

	f.orch.Drop("s-1")
	assert.NotSame(t, flow, f.orch.Flow("s-1"))
}

func TestResolveIdentity_DetectFailure_SurfacesError(t *testing.T) {
	f := setup(t)
	f.store.guest["s-1"] = &domain.Cart{Items: []domain.CartItem{item(1, 101, 1, 10)}}
	flow := f.orch.Flow("s-1")

	// A user cart read that fails with something other than not-found must
	// surface, not silently advance.
	failing := &failingCartStore{mockCartStore: f.store, failUserGet: true}
	flow.carts = failing
	flow.reconciler = cart.NewReconciler(failing, testLog())

	_, err := flow.ResolveIdentity(context.Background(), &domain.SessionUser{ID: "u-1"})
	require.Error(t, err)
	assert.NotEqual(t, domain.StageCartReconciled, flow.Stage())
}

type failingCartStore struct {
	*mockCartStore
	failUserGet bool
}

func (f *failingCartStore) GetUserCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if f.failUserGet {
		return nil, fmt.Errorf("storage unreachable")
	}
	return f.mockCartStore.GetUserCart(ctx, userID)
}
