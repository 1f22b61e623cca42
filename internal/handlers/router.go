package handlers

import (
	"net/http"

	"optin-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig lists the handlers mounted by NewRouter. Sweep and Metrics may be nil.
type RouterConfig struct {
	Tokens    middleware.TokenValidator
	Users     *UserHandler
	OptIns    *OptInHandler
	Matches   *MatchHandler
	Push      *PushHandler
	WebSocket *WebSocketHandler
	Sweep     *SweepHandler

	Metrics     http.Handler
	MetricsPath string
}

// NewRouter builds the HTTP routes of the service
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", cfg.Users.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.Tokens))
			r.Post("/groups/{group_id}/opt-ins", cfg.OptIns.CreateOptIn)
			r.Get("/opt-ins", cfg.OptIns.ListMyOptIns)
			r.Delete("/opt-ins/{opt_in_id}", cfg.OptIns.CancelOptIn)
			r.Get("/matches", cfg.Matches.ListMyMatches)
			r.Get("/matches/{match_id}", cfg.Matches.GetMatch)
			r.Post("/matches/{match_id}/chat", cfg.Matches.OpenChat)
			r.Get("/push-subscription", cfg.Push.Status)
			r.Put("/push-subscription", cfg.Push.Save)
			r.Delete("/push-subscription", cfg.Push.Remove)
		})
	})

	if cfg.Sweep != nil {
		r.Post("/internal/sweep", cfg.Sweep.Trigger)
	}

	// WebSocket route
	if cfg.WebSocket != nil {
		r.Get("/ws", cfg.WebSocket.HandleWebSocket)
	}

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.Metrics)
	}

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
