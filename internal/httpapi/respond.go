package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/cart"
	"github.com/Loka-Media/store.loka.media-sub004/internal/checkout"
	"github.com/Loka-Media/store.loka.media-sub004/internal/identity"
	"github.com/Loka-Media/store.loka.media-sub004/internal/inventory"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleFlowError maps component errors onto HTTP statuses. Everything the
// components surface is a structured sentinel or a wrapped upstream failure;
// nothing propagates as a panic.
func handleFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrMissingCredentials):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, identity.ErrBadCredentials):
		respondError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrMergePending):
		respondError(w, http.StatusConflict, "merge_pending", err.Error())
	case errors.Is(err, checkout.ErrIllegalStage),
		errors.Is(err, checkout.ErrNoMergeNeeded),
		errors.Is(err, cart.ErrNoConflict):
		respondError(w, http.StatusConflict, "invalid_stage", err.Error())
	case errors.Is(err, cart.ErrMergeInFlight),
		errors.Is(err, inventory.ErrCheckInFlight),
		errors.Is(err, address.ErrLookupInFlight):
		respondError(w, http.StatusConflict, "operation_in_flight", err.Error())
	case errors.Is(err, checkout.ErrIncompleteAddress),
		errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, cart.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", err.Error())
	default:
		respondJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:     "a dependent service failed, please retry",
			Code:      "upstream_error",
			RequestID: getRequestID(r.Context()),
		})
	}
}
