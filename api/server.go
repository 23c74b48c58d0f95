/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Timesheet routes (guarded writes + reconciliation status)
		r.Route("/timesheets/{id}", func(r chi.Router) {
			r.Get("/entries", h.ListEntries)
			r.Post("/entries", h.WriteEntry)
			r.Get("/reconciliation", h.GetReconciliation)
		})

		// Employee-side reconciliation
		r.Route("/employees/{id}/acknowledgments", func(r chi.Router) {
			r.Get("/pending", h.GetPendingAcknowledgments)
			r.Post("/", h.Acknowledge)
		})

		// Policy inspection
		r.Get("/policy/resolve", h.ResolvePolicy)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Put("/overrides", h.SetOverride)
			r.Post("/employees", h.CreateEmployee)
			r.Post("/groups", h.CreateGroup)
			r.Post("/timesheets", h.CreateTimesheet)
		})
	})

	return r
}
