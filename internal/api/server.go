package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dzerrenner/mqtt-lightify/internal/bridge"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/logging"
)

// HTTP server timeouts.
const (
	gracefulShutdownTimeout = 10 * time.Second
	readTimeout             = 5 * time.Second
	writeTimeout            = 10 * time.Second
	idleTimeout             = 60 * time.Second

	// healthCheckTimeout bounds each dependency check in /health.
	healthCheckTimeout = 2 * time.Second
)

// HealthChecker is implemented by every infrastructure client
// (mqtt, lightify, database, influxdb, elasticsearch).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusSource reports the bridge session state. *bridge.Controller
// satisfies it.
type StatusSource interface {
	Status() bridge.Status
}

var _ StatusSource = (*bridge.Controller)(nil)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Version string

	// Gatherer serves /metrics. Required.
	Gatherer prometheus.Gatherer

	// Status is optional; mqtt-archive runs without a bridge.
	Status StatusSource

	// Checks are the named dependencies probed by /health.
	Checks map[string]HealthChecker
}

// Server is the optional HTTP surface: /health and /metrics.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	version  string
	gatherer prometheus.Gatherer
	status   StatusSource
	checks   map[string]HealthChecker
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger and Gatherer are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gatherer == nil {
		return nil, fmt.Errorf("metrics gatherer is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		version:  deps.Version,
		gatherer: deps.Gatherer,
		status:   deps.Status,
		checks:   deps.Checks,
	}, nil
}

// Start binds the listener and serves in a background goroutine. The server
// can be stopped with Close().
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start() error {
	addr := s.cfg.GetAPIAddress()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
