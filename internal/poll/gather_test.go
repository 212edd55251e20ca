package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGather_CollectsAllResults(t *testing.T) {
	targets := map[string]int{"a": 1, "b": 2, "c": 3}

	results := Gather(context.Background(), zerolog.Nop(), targets,
		func(_ context.Context, _ string, target int) (int, error) {
			return target * 2, nil
		})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["b"] != 4 {
		t.Fatalf("expected 4, got %d", results["b"])
	}
}

func TestGather_IsolatesFailingTargets(t *testing.T) {
	targets := map[string]string{"good": "ok", "bad": "boom", "other": "ok"}

	results := Gather(context.Background(), zerolog.Nop(), targets,
		func(_ context.Context, key, target string) (string, error) {
			if target == "boom" {
				return "", errors.New("probe exploded")
			}
			return key + ":done", nil
		})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if _, ok := results["bad"]; ok {
		t.Fatalf("failing target must be omitted")
	}
	if results["good"] != "good:done" {
		t.Fatalf("unexpected result: %q", results["good"])
	}
}

func TestGather_RunsProbesConcurrently(t *testing.T) {
	targets := map[string]int{"a": 1, "b": 2}
	entered := make(chan struct{}, 2)
	release := make(chan struct{})

	done := make(chan map[string]int, 1)
	go func() {
		done <- Gather(context.Background(), zerolog.Nop(), targets,
			func(context.Context, string, int) (int, error) {
				entered <- struct{}{}
				<-release
				return 0, nil
			})
	}()

	// Both probes must be in flight at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatalf("probes did not run concurrently")
		}
	}
	close(release)

	select {
	case results := <-done:
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
	case <-time.After(time.Second):
		t.Fatalf("gather did not return")
	}
}

func TestGather_EmptyTargets(t *testing.T) {
	results := Gather(context.Background(), zerolog.Nop(), map[string]int{},
		func(context.Context, string, int) (int, error) {
			t.Fatal("probe must not be called")
			return 0, nil
		})

	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}
