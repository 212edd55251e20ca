package testreport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
)

const maxBodyBytes = 1 << 20

// Status values for a test report.
const (
	StatusUnknown = "unknown"
	StatusPassing = "passing"
	StatusFailing = "failing"
)

// Result is the latest test report for one service. A service without a
// reachable report endpoint gets a well-formed zeroed result with status
// unknown.
type Result struct {
	Service      string    `json:"service"`
	Timestamp    time.Time `json:"timestamp"`
	TotalTests   int       `json:"total_tests"`
	PassingTests int       `json:"passing_tests"`
	FailingTests int       `json:"failing_tests"`
	Coverage     float64   `json:"coverage"`
	Status       string    `json:"status"`
}

type report struct {
	TotalTests   int     `json:"total_tests"`
	PassingTests int     `json:"passing_tests"`
	FailingTests int     `json:"failing_tests"`
	Coverage     float64 `json:"coverage"`
}

// Prober fetches test reports from the optional per-service endpoint.
type Prober struct {
	client *http.Client
	logger zerolog.Logger
}

// NewProber returns a prober whose requests time out after timeout.
func NewProber(logger zerolog.Logger, timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch returns the service's latest test report. Report endpoints are
// optional: any failure (unreachable, non-2xx, bad payload) yields the
// zeroed unknown result rather than an error. The only error is a canceled
// pass.
func (p *Prober) Fetch(ctx context.Context, target config.Target) (Result, error) {
	result := Result{
		Service:   target.Name,
		Timestamp: time.Now().UTC(),
		Status:    StatusUnknown,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL(target), nil)
	if err != nil {
		return result, nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		p.logger.Debug().Err(err).Str("service", target.Name).Msg("test report unavailable")
		return result, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, nil
	}

	var rep report
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&rep); err != nil {
		p.logger.Debug().Err(err).Str("service", target.Name).Msg("bad test report payload")
		return result, nil
	}

	result.TotalTests = rep.TotalTests
	result.PassingTests = rep.PassingTests
	result.FailingTests = rep.FailingTests
	result.Coverage = rep.Coverage
	result.Status = deriveStatus(rep)
	return result, nil
}

func deriveStatus(rep report) string {
	switch {
	case rep.FailingTests > 0:
		return StatusFailing
	case rep.TotalTests > 0:
		return StatusPassing
	default:
		return StatusUnknown
	}
}

func reportURL(target config.Target) string {
	return strings.Replace(target.HealthURL, "/health", "/tests", 1)
}
