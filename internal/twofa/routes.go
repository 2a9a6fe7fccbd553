package twofa

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers 2FA routes with the chi router. The rate
// limiter guards the action endpoint against online code guessing.
func RegisterRoutes(r chi.Router, handler *Handler, rateLimiter func(http.Handler) http.Handler) {
	r.Route("/2fa", func(r chi.Router) {
		r.Get("/status", handler.GetStatus)

		r.Group(func(r chi.Router) {
			if rateLimiter != nil {
				r.Use(rateLimiter)
			}
			r.Post("/", handler.Action)
		})
	})
}
