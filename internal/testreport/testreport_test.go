package testreport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
)

func reportServer(body string, status int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/tests", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	return httptest.NewServer(mux)
}

func TestFetchPopulatesFromReportEndpoint(t *testing.T) {
	srv := reportServer(`{"total_tests": 42, "passing_tests": 40, "failing_tests": 2, "coverage": 87.5}`, http.StatusOK)
	defer srv.Close()

	prober := NewProber(zerolog.Nop(), time.Second)
	target := config.Target{Name: "svc-a", HealthURL: srv.URL + "/health"}

	result, err := prober.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Service != "svc-a" {
		t.Errorf("Service = %q, want svc-a", result.Service)
	}
	if result.TotalTests != 42 || result.PassingTests != 40 || result.FailingTests != 2 {
		t.Errorf("counts = %d/%d/%d, want 42/40/2", result.TotalTests, result.PassingTests, result.FailingTests)
	}
	if result.Coverage != 87.5 {
		t.Errorf("Coverage = %v, want 87.5", result.Coverage)
	}
	if result.Status != StatusFailing {
		t.Errorf("Status = %q, want %q", result.Status, StatusFailing)
	}
	if result.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestFetchAllPassing(t *testing.T) {
	srv := reportServer(`{"total_tests": 10, "passing_tests": 10, "failing_tests": 0, "coverage": 91.0}`, http.StatusOK)
	defer srv.Close()

	prober := NewProber(zerolog.Nop(), time.Second)
	target := config.Target{Name: "svc-a", HealthURL: srv.URL + "/health"}

	result, err := prober.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Status != StatusPassing {
		t.Errorf("Status = %q, want %q", result.Status, StatusPassing)
	}
}

func TestFetchZeroedResultOnFailure(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	badBody := reportServer("not json at all", http.StatusOK)
	defer badBody.Close()

	unreachable := httptest.NewServer(nil)
	unreachable.Close()

	tests := []struct {
		name      string
		healthURL string
	}{
		{name: "no report endpoint", healthURL: missing.URL + "/health"},
		{name: "bad payload", healthURL: badBody.URL + "/health"},
		{name: "unreachable service", healthURL: unreachable.URL + "/health"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			prober := NewProber(zerolog.Nop(), time.Second)
			target := config.Target{Name: "svc-b", HealthURL: tc.healthURL}

			result, err := prober.Fetch(context.Background(), target)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if result.Service != "svc-b" {
				t.Errorf("Service = %q, want svc-b", result.Service)
			}
			if result.Status != StatusUnknown {
				t.Errorf("Status = %q, want %q", result.Status, StatusUnknown)
			}
			if result.TotalTests != 0 || result.PassingTests != 0 || result.FailingTests != 0 || result.Coverage != 0 {
				t.Errorf("got non-zero counts %+v", result)
			}
			if result.Timestamp.IsZero() {
				t.Error("Timestamp not set")
			}
		})
	}
}

func TestFetchCanceledContext(t *testing.T) {
	srv := reportServer(`{"total_tests": 1}`, http.StatusOK)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := NewProber(zerolog.Nop(), time.Second)
	target := config.Target{Name: "svc-a", HealthURL: srv.URL + "/health"}

	if _, err := prober.Fetch(ctx, target); err == nil {
		t.Fatal("Fetch() with canceled context returned nil error")
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name string
		rep  report
		want string
	}{
		{name: "failures present", rep: report{TotalTests: 5, PassingTests: 3, FailingTests: 2}, want: StatusFailing},
		{name: "all passing", rep: report{TotalTests: 5, PassingTests: 5}, want: StatusPassing},
		{name: "empty suite", rep: report{}, want: StatusUnknown},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveStatus(tc.rep); got != tc.want {
				t.Errorf("deriveStatus() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReportURL(t *testing.T) {
	target := config.Target{HealthURL: "http://svc-a:8000/health"}
	if got := reportURL(target); got != "http://svc-a:8000/tests" {
		t.Errorf("reportURL() = %q, want http://svc-a:8000/tests", got)
	}
}
