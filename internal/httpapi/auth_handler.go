package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Loka-Media/store.loka.media-sub004/internal/checkout"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/identity"
)

type AuthHandler struct {
	coordinator  *identity.Coordinator
	orchestrator *checkout.Orchestrator
	timeout      time.Duration
}

func NewAuthHandler(coordinator *identity.Coordinator, orchestrator *checkout.Orchestrator, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		coordinator:  coordinator,
		orchestrator: orchestrator,
		timeout:      timeout,
	}
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponseDTO struct {
	User      *domain.SessionUser   `json:"user"`
	MergeData *domain.CartMergeData `json:"merge_data,omitempty"`
	Stage     string                `json:"stage"`
}

// POST /api/v1/auth/login
//
// Logging in mid-checkout must not reset the flow: the continuation passed to
// the coordinator re-resolves identity on the existing flow, which is where a
// guest/user cart conflict surfaces as merge_data.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "no checkout session")
		return
	}

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	flow := h.orchestrator.Flow(sessionID)
	var (
		mergeData *domain.CartMergeData
		flowErr   error
	)
	user, err := h.coordinator.Login(ctx, sessionID, req.Email, req.Password, func(u *domain.SessionUser) {
		mergeData, flowErr = flow.ResolveIdentity(ctx, u)
	})
	if err != nil {
		handleFlowError(w, r, err)
		return
	}
	if flowErr != nil && !errors.Is(flowErr, checkout.ErrEmptyCart) {
		handleFlowError(w, r, flowErr)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponseDTO{
		User:      user,
		MergeData: mergeData,
		Stage:     flow.Stage().String(),
	})
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if err := h.coordinator.Logout(ctx, sessionID); err != nil {
		handleFlowError(w, r, err)
		return
	}
	h.orchestrator.Drop(sessionID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
