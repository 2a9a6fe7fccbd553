package audit

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers audit log routes with the chi router
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/audit-logs", func(r chi.Router) {
		r.Get("/", handler.Query)
		r.Post("/", handler.LogEvent)
	})
}
