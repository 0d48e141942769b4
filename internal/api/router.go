package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/login", s.handleLogin)

	// Device-facing, identified by serial.
	r.Get("/feed/check", s.handleFeedCheck)
	r.Post("/logs/ingest", s.handleLogIngest)
	r.Get("/api/schedule/{mac}", s.handleSchedulePull)

	// Auth via single-use ticket, validated in the handler.
	r.Get(wsPath(s.wsCfg), s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/auth/ws-ticket", s.handleWSTicket)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleUpsertDevice)

			r.Route("/{deviceId}", func(r chi.Router) {
				r.Use(s.ownedDeviceMiddleware)

				r.Get("/", s.handleGetDevice)
				r.Put("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Patch("/active", s.handleSetActive)
				r.Get("/settings", s.handleGetSettings)
				r.Put("/settings", s.handlePutSettings)
				r.Get("/provisioning", s.handleProvisioning)
				r.Get("/logs", s.handleListLogs)

				r.Route("/schedules", func(r chi.Router) {
					r.Get("/", s.handleListSchedules)
					r.Post("/", s.handleCreateSchedule)
					r.Post("/sync", s.handleSyncSchedules)
					r.Get("/{scheduleId}", s.handleGetSchedule)
					r.Put("/{scheduleId}", s.handleUpdateSchedule)
					r.Delete("/{scheduleId}", s.handleDeleteSchedule)
				})
			})
		})

		r.With(s.ownedDeviceMiddleware).HandleFunc("/api/{deviceId}/*", s.handleDeviceProxy)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// defaultWSPath is used when websocket.path is unset.
const defaultWSPath = "/ws"

func wsPath(cfg config.WebSocketConfig) string {
	if cfg.Path == "" {
		return defaultWSPath
	}
	return cfg.Path
}
