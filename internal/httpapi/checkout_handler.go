package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/checkout"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/identity"
)

type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	coordinator  *identity.Coordinator
	resolver     *address.Resolver
	timeout      time.Duration
}

func NewCheckoutHandler(orchestrator *checkout.Orchestrator, coordinator *identity.Coordinator, resolver *address.Resolver, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		coordinator:  coordinator,
		resolver:     resolver,
		timeout:      timeout,
	}
}

type FlowStateDTO struct {
	Stage     string                `json:"stage"`
	Customer  domain.CustomerInfo   `json:"customer"`
	MergeData *domain.CartMergeData `json:"merge_data,omitempty"`
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetState(w http.ResponseWriter, r *http.Request) {
	flow := h.orchestrator.Flow(getSessionID(r.Context()))
	respondJSON(w, http.StatusOK, FlowStateDTO{
		Stage:     flow.Stage().String(),
		Customer:  flow.Customer(),
		MergeData: flow.PendingMerge(),
	})
}

// POST /api/v1/checkout/start
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	user, err := h.coordinator.CurrentUser(ctx, sessionID)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}

	flow := h.orchestrator.Flow(sessionID)
	mergeData, err := flow.ResolveIdentity(ctx, user)
	if err != nil && !errors.Is(err, checkout.ErrEmptyCart) {
		handleFlowError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, FlowStateDTO{
		Stage:     flow.Stage().String(),
		Customer:  flow.Customer(),
		MergeData: mergeData,
	})
}

type MergeRequestDTO struct {
	Confirm bool `json:"confirm"`
}

// POST /api/v1/checkout/merge
func (h *CheckoutHandler) ResolveMerge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req MergeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	flow := h.orchestrator.Flow(getSessionID(r.Context()))
	resolved, err := flow.ResolveMerge(ctx, req.Confirm)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resolved)
}

// GET /api/v1/checkout/regions
func (h *CheckoutHandler) Regions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	regions, err := h.resolver.LoadRegions(ctx)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, regions)
}

type CountryRequestDTO struct {
	Country string `json:"country"`
}

// PUT /api/v1/checkout/address/country
func (h *CheckoutHandler) UpdateCountry(w http.ResponseWriter, r *http.Request) {
	var req CountryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Country == "" {
		respondError(w, http.StatusBadRequest, "invalid_country", "country is required")
		return
	}

	flow := h.orchestrator.Flow(getSessionID(r.Context()))
	states := flow.UpdateCountry(req.Country)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"states":   states,
		"customer": flow.Customer(),
	})
}

type ZipRequestDTO struct {
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// PUT /api/v1/checkout/address/zip
func (h *CheckoutHandler) ChangeZip(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ZipRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	flow := h.orchestrator.Flow(getSessionID(r.Context()))
	resolution, err := flow.ChangeZip(ctx, req.Zip, req.Country)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"resolution": resolution,
		"customer":   flow.Customer(),
	})
}

// POST /api/v1/checkout/address
func (h *CheckoutHandler) SubmitAddress(w http.ResponseWriter, r *http.Request) {
	var info domain.CustomerInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	flow := h.orchestrator.Flow(getSessionID(r.Context()))
	if err := flow.SubmitAddress(info); err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, FlowStateDTO{
		Stage:    flow.Stage().String(),
		Customer: flow.Customer(),
	})
}

// POST /api/v1/checkout/inventory
func (h *CheckoutHandler) ConfirmInventory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	flow := h.orchestrator.Flow(getSessionID(r.Context()))
	result, err := flow.ConfirmInventory(ctx)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"stage":  flow.Stage().String(),
	})
}

// POST /api/v1/checkout/pay
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	flow := h.orchestrator.Flow(sessionID)
	result, err := flow.Pay(ctx)
	if err != nil {
		handleFlowError(w, r, err)
		return
	}

	h.orchestrator.Drop(sessionID)
	respondJSON(w, http.StatusOK, result)
}
