package handlers

import (
	"crypto/subtle"
	"net/http"

	"optin-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// SweepTokenHeader carries the shared secret of the external sweep trigger
const SweepTokenHeader = "X-Sweep-Token"

// SweepHandler lets an external scheduler run the expiry sweep
type SweepHandler struct {
	sweep *services.SweepService
	token string
}

// NewSweepHandler creates a new sweep handler guarded by token
func NewSweepHandler(sweep *services.SweepService, token string) *SweepHandler {
	return &SweepHandler{sweep: sweep, token: token}
}

// Trigger handles POST /internal/sweep
func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	given := r.Header.Get(SweepTokenHeader)
	if h.token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
		respondError(w, "Invalid sweep token", http.StatusUnauthorized)
		return
	}

	res, err := h.sweep.Run(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Sweep failed")
		respondError(w, "Sweep failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, res)
}
