package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/poll"
	"github.com/fleetmon/fleetmon/internal/telemetry"
)

const (
	defaultInterval = 60 * time.Second

	sourcePrometheus = "prometheus"
)

// DefaultQueries is the fixed set of named aggregate queries run each pass.
var DefaultQueries = map[string]string{
	"http_requests_total":           `sum(rate(http_requests_total[5m])) by (service)`,
	"http_request_duration_seconds": `sum(rate(http_request_duration_seconds_sum[5m])) by (service)`,
	"service_health":                `up{job=~"fleet-.*"}`,
	"cpu_usage":                     `sum(rate(container_cpu_usage_seconds_total{name=~"fleet-.*"}[5m])) by (name)`,
	"memory_usage":                  `sum(container_memory_usage_bytes{name=~"fleet-.*"}) by (name)`,
}

// Collector polls the metrics backend on a fixed interval and keeps the
// latest snapshot in memory.
type Collector struct {
	logger    zerolog.Logger
	client    *client
	telemetry *telemetry.Telemetry
	queries   map[string]string
	loop      *poll.Loop

	mu       sync.RWMutex
	snapshot Snapshot
	ready    bool

	interval      time.Duration
	timing        timingConfig
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

// WithTimeout sets the per-query HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Collector) {
		c.timing.timeout = timeout
	}
}

// WithQueries replaces the default query set.
func WithQueries(queries map[string]string) Option {
	return func(c *Collector) {
		c.queries = queries
	}
}

// WithTelemetry wires self-instrumentation.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Collector) {
		c.telemetry = t
	}
}

// WithRetryTiming tunes the transient-failure backoff.
func WithRetryTiming(initial, max, maxElapsed time.Duration) Option {
	return func(c *Collector) {
		c.timing.backoffInitial = initial
		c.timing.backoffMax = max
		c.timing.backoffMaxElapsed = maxElapsed
	}
}

// WithRateLimit tunes the query rate limit against the backend.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(c *Collector) {
		c.timing.rateInterval = interval
		c.timing.rateBurst = burst
	}
}

// WithTickerFactory overrides how the loop's tickers are created.
func WithTickerFactory(factory func(time.Duration) poll.Ticker) Option {
	return func(c *Collector) {
		c.tickerFactory = factory
	}
}

// New constructs a collector querying the backend at baseURL.
func New(logger zerolog.Logger, baseURL string, opts ...Option) *Collector {
	c := &Collector{
		logger:   logger.With().Str("collector", "metrics").Logger(),
		queries:  DefaultQueries,
		interval: defaultInterval,
		timing:   defaultTiming,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.client = newClient(c.logger, baseURL, c.timing)

	var loopOpts []poll.Option
	if c.tickerFactory != nil {
		loopOpts = append(loopOpts, poll.WithTickerFactory(c.tickerFactory))
	}
	c.loop = poll.NewLoop(logger, "metrics", c.interval, c.refresh, loopOpts...)

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

// Snapshot returns a copy of the latest snapshot. ok is false until the
// first pass has completed.
func (c *Collector) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return Snapshot{}, false
	}
	return c.snapshot.clone(), true
}

// ServiceMetrics returns the per-service view over the latest snapshot. ok
// is false until the first pass has completed.
func (c *Collector) ServiceMetrics(name string) (ServiceMetrics, bool) {
	snapshot, ok := c.Snapshot()
	if !ok {
		return ServiceMetrics{}, false
	}
	return snapshot.FilterForService(name), true
}

func (c *Collector) refresh(ctx context.Context) error {
	started := time.Now()

	results := poll.Gather(ctx, c.logger, c.queries,
		func(ctx context.Context, name, promql string) (QueryResult, error) {
			result, err := c.client.Query(ctx, promql)
			if err != nil {
				c.telemetry.CountQueryError(name)
				return QueryResult{}, fmt.Errorf("query %s: %w", name, err)
			}
			return result, nil
		})

	snapshot := Snapshot{
		Timestamp: time.Now().UTC(),
		Source:    sourcePrometheus,
		Metrics:   results,
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.ready = true
	c.mu.Unlock()

	c.telemetry.ObservePass("metrics", time.Since(started))
	c.logger.Debug().
		Int("queries", len(c.queries)).
		Int("collected", len(results)).
		Dur("elapsed", time.Since(started)).
		Msg("metrics pass complete")

	return nil
}
