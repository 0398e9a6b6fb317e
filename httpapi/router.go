package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"clientpin/auth"
)

// NewRouter assembles the HTTP surface: public auth endpoints, agent-facing
// check and dispute endpoints, and the admin back-office routes.
func NewRouter(h *Handler, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/auth/register", h.handleRegister)
		v1.Post("/auth/login", h.handleLogin)

		v1.Group(func(pr chi.Router) {
			pr.Use(authenticate(h.auth))
			pr.With(requireRole(auth.RoleAgent, auth.RoleRepresentative, auth.RoleAdmin)).
				Post("/checks/evaluate", h.handleEvaluateCheck)
			pr.With(requireRole(auth.RoleAgent, auth.RoleRepresentative)).
				Post("/disputes", h.handleRaiseDispute)
			pr.With(requireRole(auth.RoleAdmin)).
				Post("/disputes/{dispute_id}/resolve", h.handleResolveDispute)
			pr.With(requireRole(auth.RoleAdmin)).
				Get("/checks/history", h.handleListHistory)
		})
	})

	return r
}
