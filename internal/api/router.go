package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cloud/internal/bridge"
)

// healthCheckTimeout bounds all infrastructure checks of one health request.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/refresh", s.handleRefreshDevice)
				r.Post("/commands", s.handleDeviceCommand)
				r.Get("/history", s.handleDeviceHistory)
			})
		})

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Get("/{id}", s.handleGetEntity)
		})

		r.Route("/lights/{id}", func(r chi.Router) {
			r.Post("/turn_on", s.handleTurnOn)
			r.Post("/turn_off", s.handleTurnOff)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns bridge health and the result of every infrastructure
// check. A failed check makes the response 503; bridge degradation alone
// (failing devices) is reported in the body with 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.bridge.Health()
	status, code := health.Status, http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status, code = bridge.HealthDegraded, http.StatusServiceUnavailable
			s.logger.Warn("health check failed", "component", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
		"bridge":  health,
		"clients": s.hub.ClientCount(),
	})
}
