package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/poll"
	"github.com/fleetmon/fleetmon/internal/telemetry"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Collector polls every target's health endpoints on a fixed interval and
// caches the latest result per service.
type Collector struct {
	logger    zerolog.Logger
	prober    *Prober
	telemetry *telemetry.Telemetry
	targets   *poll.Cache[string, config.Target]
	results   *poll.Cache[string, Result]
	loop      *poll.Loop

	interval      time.Duration
	timeout       time.Duration
	tickerFactory func(time.Duration) poll.Ticker
}

// Option customizes collector behavior.
type Option func(*Collector)

// WithInterval sets the polling interval.
func WithInterval(interval time.Duration) Option {
	return func(c *Collector) {
		c.interval = interval
	}
}

// WithTimeout sets the per-probe HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Collector) {
		c.timeout = timeout
	}
}

// WithTelemetry wires self-instrumentation.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Collector) {
		c.telemetry = t
	}
}

// WithTickerFactory overrides how the loop's tickers are created.
func WithTickerFactory(factory func(time.Duration) poll.Ticker) Option {
	return func(c *Collector) {
		c.tickerFactory = factory
	}
}

// New constructs a collector monitoring the given targets.
func New(logger zerolog.Logger, targets map[string]config.Target, opts ...Option) *Collector {
	c := &Collector{
		logger:   logger.With().Str("collector", "health").Logger(),
		targets:  poll.NewCache[string, config.Target](),
		results:  poll.NewCache[string, Result](),
		interval: defaultInterval,
		timeout:  defaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.prober = NewProber(c.logger, c.timeout)

	for name, target := range targets {
		if target.Name == "" {
			target.Name = name
		}
		c.targets.Put(name, target.Normalized())
	}

	var loopOpts []poll.Option
	if c.tickerFactory != nil {
		loopOpts = append(loopOpts, poll.WithTickerFactory(c.tickerFactory))
	}
	c.loop = poll.NewLoop(logger, "health", c.interval, c.refresh, loopOpts...)

	return c
}

// Start runs the first pass synchronously and launches the poll loop.
func (c *Collector) Start(ctx context.Context) error {
	return c.loop.Start(ctx)
}

// Stop halts polling and waits for the loop to terminate.
func (c *Collector) Stop() {
	c.loop.Stop()
}

// Running reports whether the collector has been started.
func (c *Collector) Running() bool {
	return c.loop.Running()
}

// All returns a copy of the latest results keyed by service name.
func (c *Collector) All() map[string]Result {
	return c.results.Snapshot()
}

// Get returns the latest result for one service.
func (c *Collector) Get(name string) (Result, bool) {
	return c.results.Get(name)
}

// Register adds or replaces a monitored target. The target is probed on the
// next pass; existing results are not touched.
func (c *Collector) Register(target config.Target) {
	c.targets.Put(target.Name, target.Normalized())
	c.logger.Info().Str("service", target.Name).Msg("service registered")
}

// Targets returns a copy of the monitored target list.
func (c *Collector) Targets() map[string]config.Target {
	return c.targets.Snapshot()
}

func (c *Collector) refresh(ctx context.Context) error {
	started := time.Now()
	targets := c.targets.Snapshot()

	results := poll.Gather(ctx, c.logger, targets,
		func(ctx context.Context, _ string, target config.Target) (Result, error) {
			return c.prober.Check(ctx, target)
		})

	healthy := 0
	for name, result := range results {
		if result.Status == StatusHealthy {
			healthy++
		}
		c.telemetry.ObserveHealthCheck(name, result.Status == StatusHealthy, healthLatencySeconds(result))
		if previous, ok := c.results.Get(name); ok && previous.Status != result.Status {
			c.logTransition(name, previous.Status, result.Status)
		}
	}
	c.results.PutAll(results)

	c.telemetry.ObservePass("health", time.Since(started))
	c.logger.Debug().
		Int("targets", len(targets)).
		Int("healthy", healthy).
		Dur("elapsed", time.Since(started)).
		Msg("health pass complete")

	return nil
}

func (c *Collector) logTransition(service string, previous, current Status) {
	event := c.logger.Info()
	switch current {
	case StatusUnhealthy:
		event = c.logger.Error()
	case StatusDegraded:
		event = c.logger.Warn()
	}
	event.
		Str("service", service).
		Str("previous_status", string(previous)).
		Str("current_status", string(current)).
		Msg("status transition")

	c.telemetry.CountTransition(service, string(current))
}

func healthLatencySeconds(result Result) float64 {
	return result.Checks[CheckHealth].LatencyMS / 1000.0
}
