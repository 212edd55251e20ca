package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/poll"
)

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

func newHealthyServer(hits *atomic.Int32, liveDown *atomic.Bool) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/live", func(w http.ResponseWriter, _ *http.Request) {
		if liveDown != nil && liveDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestCollector_StartRunsFirstPassBeforeReturning(t *testing.T) {
	server := newHealthyServer(nil, nil)
	defer server.Close()

	targets := map[string]config.Target{
		"svc-a": {Name: "svc-a", HealthURL: server.URL + "/health", Port: 8001},
	}
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}

	c := New(zerolog.Nop(), targets,
		WithTickerFactory(func(time.Duration) poll.Ticker { return ticker }),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	results := c.All()
	if len(results) != 1 {
		t.Fatalf("expected 1 result after start, got %d", len(results))
	}
	if results["svc-a"].Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", results["svc-a"].Status)
	}
}

func TestCollector_FailingTargetDoesNotBlockOthers(t *testing.T) {
	server := newHealthyServer(nil, nil)
	defer server.Close()

	dead := httptest.NewServer(http.NewServeMux())
	deadURL := dead.URL
	dead.Close()

	targets := map[string]config.Target{
		"svc-a": {Name: "svc-a", HealthURL: server.URL + "/health", Port: 8001},
		"svc-b": {Name: "svc-b", HealthURL: deadURL + "/health", Port: 8002},
	}
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}

	c := New(zerolog.Nop(), targets,
		WithTickerFactory(func(time.Duration) poll.Ticker { return ticker }),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	results := c.All()
	if len(results) != 2 {
		t.Fatalf("expected results for both targets, got %d", len(results))
	}
	if results["svc-a"].Status != StatusHealthy {
		t.Fatalf("svc-a status = %q", results["svc-a"].Status)
	}
	if results["svc-b"].Status != StatusUnhealthy {
		t.Fatalf("svc-b status = %q", results["svc-b"].Status)
	}
	if results["svc-b"].Checks[CheckHealth].Status != CheckStatusError {
		t.Fatalf("svc-b health sub-status = %q", results["svc-b"].Checks[CheckHealth].Status)
	}
}

func TestCollector_RegisterTakesEffectOnNextPass(t *testing.T) {
	server := newHealthyServer(nil, nil)
	defer server.Close()

	targets := map[string]config.Target{
		"svc-a": {Name: "svc-a", HealthURL: server.URL + "/health", Port: 8001},
	}
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}

	c := New(zerolog.Nop(), targets,
		WithTickerFactory(func(time.Duration) poll.Ticker { return ticker }),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	c.Register(config.Target{Name: "svc-b", HealthURL: server.URL + "/health", Port: 8002})

	registered, ok := c.Targets()["svc-b"]
	if !ok {
		t.Fatal("svc-b missing from target list")
	}
	if registered.ReadyURL != server.URL+"/ready" {
		t.Fatalf("ready url not derived: %q", registered.ReadyURL)
	}
	if _, ok := c.All()["svc-b"]; ok {
		t.Fatal("svc-b must not have a result before the next pass")
	}

	ticker.ch <- time.Now()

	waitFor(t, time.Second, func() bool {
		_, ok := c.Get("svc-b")
		return ok
	})

	result, _ := c.Get("svc-b")
	if result.Status != StatusHealthy {
		t.Fatalf("svc-b status = %q", result.Status)
	}
}

func TestCollector_SnapshotUnaffectedByLaterPasses(t *testing.T) {
	var liveDown atomic.Bool
	server := newHealthyServer(nil, &liveDown)
	defer server.Close()

	targets := map[string]config.Target{
		"svc-a": {Name: "svc-a", HealthURL: server.URL + "/health", Port: 8001},
	}
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}

	c := New(zerolog.Nop(), targets,
		WithTickerFactory(func(time.Duration) poll.Ticker { return ticker }),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	snapshot := c.All()
	if snapshot["svc-a"].Status != StatusHealthy {
		t.Fatalf("expected healthy snapshot, got %q", snapshot["svc-a"].Status)
	}

	liveDown.Store(true)
	ticker.ch <- time.Now()

	waitFor(t, time.Second, func() bool {
		result, _ := c.Get("svc-a")
		return result.Status == StatusUnhealthy
	})

	if snapshot["svc-a"].Status != StatusHealthy {
		t.Fatalf("snapshot mutated by a later pass: %q", snapshot["svc-a"].Status)
	}
}

func TestCollector_StopHaltsPolling(t *testing.T) {
	var hits atomic.Int32
	server := newHealthyServer(&hits, nil)
	defer server.Close()

	targets := map[string]config.Target{
		"svc-a": {Name: "svc-a", HealthURL: server.URL + "/health", Port: 8001},
	}
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}

	c := New(zerolog.Nop(), targets,
		WithTickerFactory(func(time.Duration) poll.Ticker { return ticker }),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Stop()

	if c.Running() {
		t.Fatal("expected collector to be stopped")
	}

	before := hits.Load()
	ticker.ch <- time.Now()
	time.Sleep(100 * time.Millisecond)

	if got := hits.Load(); got != before {
		t.Fatalf("pass ran after stop: %d -> %d probes", before, got)
	}
}
