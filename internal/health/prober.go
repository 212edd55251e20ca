package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetmon/fleetmon/internal/config"
)

const maxBodyBytes = 1 << 20

type endpointKind struct {
	pass        string
	fail        string
	captureBody bool
}

var (
	healthEndpoint = endpointKind{pass: CheckStatusHealthy, fail: CheckStatusUnhealthy, captureBody: true}
	readyEndpoint  = endpointKind{pass: CheckStatusReady, fail: CheckStatusNotReady}
	liveEndpoint   = endpointKind{pass: CheckStatusAlive, fail: CheckStatusDead}
)

// Prober issues the health, ready and live probes for single targets.
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

// Check probes all three endpoints of target and derives the composite
// status. Endpoint failures are captured inside the result, never returned;
// the only error is a canceled pass, in which case the caller must discard
// the result.
func (p *Prober) Check(ctx context.Context, target config.Target) (Result, error) {
	checks := map[string]CheckResult{
		CheckHealth: p.probe(ctx, target.HealthURL, healthEndpoint),
		CheckReady:  p.probe(ctx, target.ReadyURL, readyEndpoint),
		CheckLive:   p.probe(ctx, target.LiveURL, liveEndpoint),
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Result{
		Service:   target.Name,
		Timestamp: time.Now().UTC(),
		Status:    Derive(checks),
		Checks:    checks,
	}, nil
}

func (p *Prober) probe(ctx context.Context, url string, kind endpointKind) CheckResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CheckResult{Status: CheckStatusError, Error: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return CheckResult{
			Status:    CheckStatusError,
			Error:     err.Error(),
			LatencyMS: latencyMS(start),
		}
	}
	defer resp.Body.Close()

	result := CheckResult{
		StatusCode: resp.StatusCode,
		LatencyMS:  latencyMS(start),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Status = kind.fail
		return result
	}

	result.Status = kind.pass
	if kind.captureBody {
		result.Data = decodeBody(resp.Body)
	}
	return result
}

// decodeBody parses a JSON object payload. Non-JSON bodies are ignored:
// the endpoint answered, which is all the check requires.
func decodeBody(body io.Reader) map[string]any {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}

func latencyMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
