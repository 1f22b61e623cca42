package handlers

import (
	"net/http"

	"optin-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	tokens *services.TokenService
}

// NewUserHandler creates a new user handler
func NewUserHandler(tokens *services.TokenService) *UserHandler {
	return &UserHandler{
		tokens: tokens,
	}
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.tokens.CreateAnonymousUser()
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Msg("User created")

	respondJSON(w, http.StatusOK, user)
}
