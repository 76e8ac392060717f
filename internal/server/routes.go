package server

import "github.com/go-chi/chi/v5"

// RegisterRoutes wires the submit/poll/health/cancel routes onto r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/{id}", h.HandleStatus)
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}
