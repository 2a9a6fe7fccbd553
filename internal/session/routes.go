package session

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers session routes with the chi router
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Delete("/", handler.Delete)
		r.Post("/touch", handler.Touch)
	})
}
