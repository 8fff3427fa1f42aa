package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Device-facing routes (public, the token travels in the body)
	r.Post("/admission", s.HandleAdmission)
	r.Post("/devices/bind", s.HandleBindDevice)

	// Protected routes
	r.Group(func(r chi.Router) {
		// Tenants
		r.Route("/tenants", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetTenant)
				r.Patch("/", s.HandleUpdateTenant)
				r.Post("/claims", s.HandleIssueProvisioningClaim)
			})
		})

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Route("/{thing_name}", func(r chi.Router) {
				r.Get("/", s.HandleGetDevice)
				r.Delete("/", s.HandleDeleteDevice)
			})
		})
	})
}
