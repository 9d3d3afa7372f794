package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-panel/internal/panel"
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

	// Browser dashboard
	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.cfg.PanelDir)))
	r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Auth endpoints work without a session.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Post("/signup", s.handleSignup)
			r.Post("/password-reset", s.handlePasswordReset)
			r.Get("/session", s.handleSession)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.handleSyncStatus)
			r.With(s.sessionMiddleware).Post("/refresh", s.handleSyncRefresh)
		})

		// Snapshot reads answer without a session: the snapshot is simply
		// empty while logged out. Everything forwarded to the backend needs one.
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)

				r.Group(func(r chi.Router) {
					r.Use(s.sessionMiddleware)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/area", s.handleRemoveDeviceArea)
					r.Put("/command", s.handleDeviceCommand)
					r.Get("/history", s.handleDeviceHistory)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Route("/hubs", func(r chi.Router) {
				r.Get("/", s.handleListHubs)
				r.Post("/claim", s.handleClaimHub)
				r.Patch("/{id}", s.handleUpdateHub)
				r.Get("/{id}/devices", s.handleHubDevices)
			})

			r.Post("/cameras/claim", s.handleClaimCamera)

			r.Route("/areas", func(r chi.Router) {
				r.Get("/", s.handleListAreas)
				r.Post("/", s.handleCreateArea)
				r.Patch("/{id}", s.handleUpdateArea)
				r.Delete("/{id}", s.handleDeleteArea)
				r.Get("/{id}/devices", s.handleAreaDevices)
			})

			r.Get("/audit", s.handleListActivity)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"sync":    s.engine.Status().State,
	})
}
