package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dzerrenner/mqtt-lightify/internal/bridge"
)

// Health statuses.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string            `json:"status"`
	Version         string            `json:"version"`
	Phase           string            `json:"phase,omitempty"`
	ConnectionState *int              `json:"connection_state,omitempty"`
	Devices         map[string]int    `json:"devices,omitempty"`
	Checks          map[string]string `json:"checks,omitempty"`
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID, s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})

	return r
}

// handleHealth reports the bridge session and probes each dependency.
// Any failed check, or a bridge that is not ready, answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: statusOK, Version: s.version}

	if s.status != nil {
		st := s.status.Status()
		state := int(st.ConnectionState)
		resp.Phase = st.Phase.String()
		resp.ConnectionState = &state
		resp.Devices = make(map[string]int, len(st.Devices))
		for kind, n := range st.Devices {
			resp.Devices[kind.String()] = n
		}
		if st.Phase != bridge.PhaseReady {
			resp.Status = statusDegraded
		}
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = statusDegraded
				continue
			}
			resp.Checks[name] = statusOK
		}
	}

	code := http.StatusOK
	if resp.Status != statusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
