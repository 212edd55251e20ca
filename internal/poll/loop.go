package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Ticker is the minimal interface needed for driving a collector loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Pass executes one full collection cycle.
type Pass func(ctx context.Context) error

// Loop drives a collector: one synchronous pass on Start, then one pass per
// tick until Stop. Passes run on a single goroutine and never overlap.
type Loop struct {
	logger        zerolog.Logger
	interval      time.Duration
	pass          Pass
	tickerFactory func(time.Duration) Ticker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option customizes loop behavior.
type Option func(*Loop)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(l *Loop) {
		l.tickerFactory = factory
	}
}

// NewLoop constructs a loop that runs pass every interval. The name tags
// every log line emitted by the loop.
func NewLoop(logger zerolog.Logger, name string, interval time.Duration, pass Pass, opts ...Option) *Loop {
	l := &Loop{
		logger:   logger.With().Str("collector", name).Logger(),
		interval: interval,
		pass:     pass,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Start runs one pass synchronously, then launches the background loop.
// Calling Start on a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) error {
	if l.interval <= 0 {
		return errors.New("interval must be greater than zero")
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.running = true
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	// First pass happens before Start returns so callers never read an
	// empty cache after startup.
	if err := l.pass(loopCtx); err != nil {
		l.logger.Error().Err(err).Msg("initial pass failed")
	}

	go l.run(loopCtx, done)

	l.logger.Info().Dur("interval", l.interval).Msg("collector started")
	return nil
}

// Stop cancels the background loop and blocks until it has fully
// terminated. Stopping a never-started or already-stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	done := l.done
	cancel := l.cancel
	l.running = false
	l.done = nil
	l.cancel = nil
	l.mu.Unlock()

	if done == nil {
		return
	}

	cancel()
	<-done
	l.logger.Info().Msg("collector stopped")
}

// Running reports whether the loop has been started and not yet stopped.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := l.tickerFactory(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := l.pass(ctx); err != nil {
				l.logger.Error().Err(err).Msg("pass failed")
			}
		}
	}
}
