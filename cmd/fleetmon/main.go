package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/health"
	"github.com/fleetmon/fleetmon/internal/logging"
	"github.com/fleetmon/fleetmon/internal/metrics"
	"github.com/fleetmon/fleetmon/internal/server"
	"github.com/fleetmon/fleetmon/internal/telemetry"
	"github.com/fleetmon/fleetmon/internal/testreport"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New().Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().Str("version", version).Msg("fleetmon starting")

	targets := config.LoadTargets(cfg.ServicesFile, logger)
	tel := telemetry.New()

	healthCollector := health.New(logger, targets,
		health.WithInterval(cfg.HealthInterval),
		health.WithTimeout(cfg.HealthTimeout),
		health.WithTelemetry(tel),
	)
	metricsCollector := metrics.New(logger, cfg.PrometheusURL,
		metrics.WithInterval(cfg.MetricsInterval),
		metrics.WithTimeout(cfg.MetricsTimeout),
		metrics.WithTelemetry(tel),
	)
	testCollector := testreport.New(logger, targets,
		testreport.WithInterval(cfg.TestInterval),
		testreport.WithTelemetry(tel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := healthCollector.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("health collector failed to start")
	}
	defer healthCollector.Stop()

	if err := metricsCollector.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("metrics collector failed to start")
	}
	defer metricsCollector.Stop()

	if err := testCollector.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("test collector failed to start")
	}
	defer testCollector.Stop()

	api := server.New(logger, cfg.ListenAddr, version, healthCollector, metricsCollector, testCollector, tel)
	api.Start(ctx)

	logger.Info().Str("addr", cfg.ListenAddr).Int("services", len(targets)).Msg("fleetmon running")
	<-ctx.Done()
	logger.Info().Msg("fleetmon shutting down")
}
