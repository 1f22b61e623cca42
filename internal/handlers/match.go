package handlers

import (
	"net/http"

	"optin-backend/internal/middleware"
	"optin-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// MatchHandler handles match HTTP requests
type MatchHandler struct {
	matches *services.MatchService
	chats   *services.ChatService
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matches *services.MatchService, chats *services.ChatService) *MatchHandler {
	return &MatchHandler{matches: matches, chats: chats}
}

// ListMyMatches handles GET /api/v1/matches
func (h *MatchHandler) ListMyMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	matches, err := h.matches.ListMyMatches(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to get matches")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

// GetMatch handles GET /api/v1/matches/{match_id}
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	m, err := h.matches.GetMatch(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "match_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get match")
		return
	}

	respondJSON(w, http.StatusOK, m)
}

// OpenChat handles POST /api/v1/matches/{match_id}/chat
func (h *MatchHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chat, err := h.chats.GetOrCreateChat(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "match_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to open chat")
		return
	}

	respondJSON(w, http.StatusOK, chat)
}
