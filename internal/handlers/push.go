package handlers

import (
	"encoding/json"
	"net/http"

	"optin-backend/internal/middleware"
	"optin-backend/internal/services"
)

// PushHandler handles push subscription HTTP requests
type PushHandler struct {
	push *services.PushService
}

// NewPushHandler creates a new push subscription handler
func NewPushHandler(push *services.PushService) *PushHandler {
	return &PushHandler{push: push}
}

// SavePushSubscriptionRequest represents the request body for registering a device
type SavePushSubscriptionRequest struct {
	DeviceToken string `json:"device_token"`
}

// PushSubscriptionStatus tells whether the caller has a registered device
type PushSubscriptionStatus struct {
	Subscribed bool `json:"subscribed"`
}

// Save handles PUT /api/v1/push-subscription
func (h *PushHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SavePushSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.push.Save(ctx, middleware.GetUserID(ctx), req.DeviceToken); err != nil {
		respondServiceError(w, err, "Failed to save push subscription")
		return
	}

	respondJSON(w, http.StatusOK, PushSubscriptionStatus{Subscribed: true})
}

// Remove handles DELETE /api/v1/push-subscription
func (h *PushHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.push.Remove(ctx, middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, err, "Failed to remove push subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/v1/push-subscription
func (h *PushHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	has, err := h.push.Has(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to get push subscription")
		return
	}

	respondJSON(w, http.StatusOK, PushSubscriptionStatus{Subscribed: has})
}
