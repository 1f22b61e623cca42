package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"optin-backend/internal/middleware"
	"optin-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// OptInHandler handles opt-in HTTP requests
type OptInHandler struct {
	optIns *services.OptInService
}

// NewOptInHandler creates a new opt-in handler
func NewOptInHandler(optIns *services.OptInService) *OptInHandler {
	return &OptInHandler{optIns: optIns}
}

// CreateOptInRequest represents the request body for creating an opt-in
type CreateOptInRequest struct {
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// CreateOptIn handles POST /api/v1/groups/{group_id}/opt-ins
func (h *OptInHandler) CreateOptIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	groupID := chi.URLParam(r, "group_id")

	var req CreateOptInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.StartsAt == nil || req.EndsAt == nil {
		respondError(w, "starts_at and ends_at are required", http.StatusBadRequest)
		return
	}

	optIn, err := h.optIns.CreateOptIn(ctx, userID, groupID, *req.StartsAt, *req.EndsAt)
	if err != nil {
		respondServiceError(w, err, "Failed to create opt-in")
		return
	}

	respondJSON(w, http.StatusOK, optIn)
}

// CancelOptIn handles DELETE /api/v1/opt-ins/{opt_in_id}
func (h *OptInHandler) CancelOptIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.optIns.CancelOptIn(ctx, userID, chi.URLParam(r, "opt_in_id")); err != nil {
		respondServiceError(w, err, "Failed to cancel opt-in")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMyOptIns handles GET /api/v1/opt-ins
func (h *OptInHandler) ListMyOptIns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	optIns, err := h.optIns.ListMyOptIns(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to get opt-ins")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"opt_ins": optIns})
}
