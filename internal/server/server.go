package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/health"
	"github.com/fleetmon/fleetmon/internal/metrics"
	"github.com/fleetmon/fleetmon/internal/telemetry"
	"github.com/fleetmon/fleetmon/internal/testreport"
)

const shutdownTimeout = 5 * time.Second

// HealthSource provides the aggregated fleet health state.
type HealthSource interface {
	All() map[string]health.Result
	Get(name string) (health.Result, bool)
	Register(target config.Target)
}

// MetricsSource provides the latest metrics snapshot.
type MetricsSource interface {
	Snapshot() (metrics.Snapshot, bool)
	ServiceMetrics(name string) (metrics.ServiceMetrics, bool)
}

// TestSource provides the latest test reports.
type TestSource interface {
	All() map[string]testreport.Result
	Get(name string) (testreport.Result, bool)
}

// Server exposes the aggregated state over HTTP. A nil source means that
// collector was never wired; its routes answer 503.
type Server struct {
	logger    zerolog.Logger
	addr      string
	version   string
	health    HealthSource
	metrics   MetricsSource
	tests     TestSource
	telemetry *telemetry.Telemetry
}

// New constructs the API server.
func New(logger zerolog.Logger, addr, version string, healthSource HealthSource, metricsSource MetricsSource, testSource TestSource, tel *telemetry.Telemetry) *Server {
	return &Server{
		logger:    logger.With().Str("component", "server").Logger(),
		addr:      addr,
		version:   version,
		health:    healthSource,
		metrics:   metricsSource,
		tests:     testSource,
		telemetry: tel,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleSelfHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleSelfReady).Methods(http.MethodGet)
	r.HandleFunc("/live", s.handleSelfLive).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/services/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/services/{name}", s.handleService).Methods(http.MethodGet)
	api.HandleFunc("/services/{name}/metrics", s.handleServiceMetrics).Methods(http.MethodGet)
	api.HandleFunc("/services/{name}/tests", s.handleServiceTests).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	api.Handle("/metrics/prometheus", s.telemetry.Handler()).Methods(http.MethodGet)
	api.HandleFunc("/tests", s.handleTests).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)

	return r
}

// Start launches the HTTP server and shuts it down when ctx is canceled.
func (s *Server) Start(ctx context.Context) {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("addr", s.addr).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http server shutdown failed")
		}
	}()
}
