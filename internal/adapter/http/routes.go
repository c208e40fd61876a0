package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/diagnostics", h.SubmitDiagnostic)
		r.Get("/queue", h.ListQueue)
	})

	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}
}
