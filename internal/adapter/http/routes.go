package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Post("/agents", h.SpawnAgent)
		r.Post("/agents/validate", h.ValidateSpawn)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/stats", h.GetStats)
		r.Post("/agents/cancel-all", h.CancelAllAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Post("/agents/{id}/cancel", h.CancelAgent)
		r.Get("/agents/{id}/events", h.ListAgentEvents)

		// Conflicts
		r.Get("/conflicts", h.ListConflicts)

		// Audit trail
		r.Get("/events", h.ListRecentEvents)
	})
}
