package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Loka-Media/store.loka.media-sub004/internal/cart"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/identity"
)

type CartHandler struct {
	carts       cart.Store
	coordinator *identity.Coordinator
	timeout     time.Duration
}

func NewCartHandler(carts cart.Store, coordinator *identity.Coordinator, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:       carts,
		coordinator: coordinator,
		timeout:     timeout,
	}
}

type AddItemRequestDTO struct {
	VariantID            int64   `json:"variant_id"`
	FulfillmentVariantID int64   `json:"fulfillment_variant_id,omitempty"`
	Name                 string  `json:"name"`
	Quantity             int32   `json:"quantity"`
	UnitPrice            float64 `json:"unit_price"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	active, err := h.activeCart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, active)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.VariantID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	sessionID := getSessionID(r.Context())
	active, err := h.activeCart(ctx, sessionID)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}

	addItem(active, req)

	if active.OwnerKey == sessionID {
		err = h.carts.SaveGuestCart(ctx, sessionID, active)
	} else {
		err = h.carts.SaveUserCart(ctx, active.OwnerKey, active)
	}
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, active)
}

// activeCart returns the user's saved cart when the session is authenticated,
// the guest cart otherwise. A missing cart is an empty cart, never an error.
func (h *CartHandler) activeCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	user, err := h.coordinator.CurrentUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ownerKey := sessionID
	var active *domain.Cart
	if user != nil {
		ownerKey = user.ID
		active, err = h.carts.GetUserCart(ctx, user.ID)
	} else {
		active, err = h.carts.GetGuestCart(ctx, sessionID)
	}
	if errors.Is(err, cart.ErrCartNotFound) {
		now := time.Now()
		return &domain.Cart{OwnerKey: ownerKey, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return active, nil
}

func addItem(active *domain.Cart, req AddItemRequestDTO) {
	for i := range active.Items {
		if active.Items[i].VariantID == req.VariantID {
			active.Items[i].Quantity += req.Quantity
			active.Items[i].Subtotal = active.Items[i].UnitPrice * float64(active.Items[i].Quantity)
			return
		}
	}
	active.Items = append(active.Items, domain.CartItem{
		VariantID:            req.VariantID,
		FulfillmentVariantID: req.FulfillmentVariantID,
		Name:                 req.Name,
		Quantity:             req.Quantity,
		UnitPrice:            req.UnitPrice,
		Subtotal:             req.UnitPrice * float64(req.Quantity),
	})
}
