package testreport

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/poll"
	"github.com/fleetmon/fleetmon/internal/telemetry"
)

const (
	defaultInterval = 5 * time.Minute
	defaultTimeout  = 5 * time.Second
)

// Collector polls every target's test report endpoint on a fixed interval
// and caches the latest result per service. The target list is fixed at
// construction.
type Collector struct {
	logger    zerolog.Logger
	prober    *Prober
	telemetry *telemetry.Telemetry
	targets   map[string]config.Target
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

// New constructs a collector polling test reports for the given targets.
func New(logger zerolog.Logger, targets map[string]config.Target, opts ...Option) *Collector {
	c := &Collector{
		logger:   logger.With().Str("collector", "tests").Logger(),
		targets:  make(map[string]config.Target, len(targets)),
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
		c.targets[name] = target.Normalized()
	}

	var loopOpts []poll.Option
	if c.tickerFactory != nil {
		loopOpts = append(loopOpts, poll.WithTickerFactory(c.tickerFactory))
	}
	c.loop = poll.NewLoop(logger, "tests", c.interval, c.refresh, loopOpts...)

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

func (c *Collector) refresh(ctx context.Context) error {
	started := time.Now()

	results := poll.Gather(ctx, c.logger, c.targets,
		func(ctx context.Context, _ string, target config.Target) (Result, error) {
			return c.prober.Fetch(ctx, target)
		})
	c.results.PutAll(results)

	c.telemetry.ObservePass("tests", time.Since(started))
	c.logger.Debug().
		Int("targets", len(c.targets)).
		Dur("elapsed", time.Since(started)).
		Msg("test report pass complete")

	return nil
}
