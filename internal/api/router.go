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

		// WebSocket (auth via ticket, validated in handler)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/command", s.handleDeviceCommand)
				})
			})

			r.Get("/scan", s.handleGetScan)
			r.Post("/scan", s.handleStartScan)
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	responding := 0
	for _, d := range devices {
		if d.Responding {
			responding++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            s.version,
		"devices_managed":    len(devices),
		"devices_responding": responding,
		"websocket_clients":  s.hub.ClientCount(),
	})
}
