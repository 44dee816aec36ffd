package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)

			r.Route("/auth", func(r chi.Router) {
				r.Get("/status", s.handleAuthStatus)
				r.Post("/device", s.handleBeginDeviceAuth)
			})

			r.Get("/topology", s.handleTopology)

			r.Route("/homes/{homeID}", func(r chi.Router) {
				r.Get("/state", s.handleHomeState)
				r.Put("/presence", s.handleSetPresence)
				r.Post("/meter-readings", s.handleAddMeterReading)

				r.Route("/zones/{zoneID}/overlay", func(r chi.Router) {
					r.Put("/", s.handleSetOverlay)
					r.Delete("/", s.handleResumeSchedule)
				})

				r.Route("/devices/{serial}", func(r chi.Router) {
					r.Put("/child-lock", s.handleSetChildLock)
					r.Put("/temperature-offset", s.handleSetTemperatureOffset)
				})
			})

			// WebSocket state stream
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
