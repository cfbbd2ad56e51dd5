/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for the member frontend
  5. Authenticate: Bearer session on everything but /api/auth and probes

ROUTE GROUPS:
  /api/auth/*      Sign-up, sign-in, password reset (public)
  /api/me          Own profile
  /api/members/*   Profiles, rewards, per-member logs
  /api/logs/*      Log submission and edits
  /api/review/*    Pending log review
  /api/admin/*     Import, export, legacy clear
  /api/sheets/*    Sign-in sheets
  /healthz         Liveness
  /metrics         Prometheus
  /blobs/*         Sheet images when blobs are kept in memory

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

// DefaultAllowedOrigins are the local frontend dev servers.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", h.Metrics.Handler())
	if _, ok := h.Sheets.Blobs.(BlobOpener); ok {
		r.Get("/blobs/*", h.ServeBlob)
	}

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.SignUp)
			r.Post("/signin", h.SignIn)
			r.Post("/reset", h.RequestReset)
			r.Post("/reset/confirm", h.ConfirmReset)
			r.With(h.Authenticate).Post("/signout", h.SignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/me", h.GetMe)

			// Member routes
			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.ListMembers)
				r.Get("/{id}", h.GetMember)
				r.Put("/{id}", h.UpdateMember)
				r.Get("/{id}/rewards", h.GetMemberRewards)
				r.Get("/{id}/logs", h.ListMemberLogs)
				r.Post("/{id}/dedupe", h.DedupeMemberLogs)
			})

			// Log routes
			r.Route("/logs", func(r chi.Router) {
				r.Post("/propose", h.ProposeLog)
				r.Post("/", h.CreateLog)
				r.Put("/{owner}/{id}/propose", h.ProposeLogEdit)
				r.Put("/{owner}/{id}", h.UpdateLog)
				r.Delete("/{owner}/{id}", h.DeleteLog)
				r.Post("/{owner}/{id}/rollover", h.ToggleRollover)
				r.Get("/{owner}/{id}/history", h.GetLogHistory)
			})

			// Review routes
			r.Route("/review", func(r chi.Router) {
				r.Get("/pending", h.ListPending)
				r.Post("/{id}/approve", h.ApproveLog)
				r.Post("/{id}/reject", h.RejectLog)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Post("/import", h.ImportCSV)
				r.Get("/export/{kind}", h.Export)
				r.Delete("/legacy", h.ClearLegacy)
			})

			// Sheet routes
			r.Route("/sheets", func(r chi.Router) {
				r.Get("/", h.ListSheets)
				r.Post("/", h.StartSheet)
				r.Get("/{code}", h.GetSheet)
				r.Post("/{code}/entries", h.SubmitSheetEntries)
				r.Delete("/{code}", h.DeleteSheet)
			})
		})
	})

	return r
}
