package health

import "time"

// Status is the composite health of a monitored service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Names of the three sub-checks within a Result.
const (
	CheckHealth = "health"
	CheckReady  = "ready"
	CheckLive   = "live"
)

// Sub-check status values.
const (
	CheckStatusHealthy   = "healthy"
	CheckStatusUnhealthy = "unhealthy"
	CheckStatusReady     = "ready"
	CheckStatusNotReady  = "not_ready"
	CheckStatusAlive     = "alive"
	CheckStatusDead      = "dead"
	CheckStatusError     = "error"
)

// CheckResult is the outcome of probing one endpoint.
type CheckResult struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code,omitempty"`
	LatencyMS  float64        `json:"latency_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Result is the latest aggregated health of one service. Results are
// replaced wholesale each pass; a service missing from the cache has
// status unknown by absence.
type Result struct {
	Service   string                 `json:"service"`
	Timestamp time.Time              `json:"timestamp"`
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Derive computes the composite status from the three sub-checks. All
// three passing means healthy. A service whose live check passes but
// anything else fails is degraded. A dead or unreachable service is
// unhealthy.
func Derive(checks map[string]CheckResult) Status {
	healthOK := checks[CheckHealth].Status == CheckStatusHealthy
	readyOK := checks[CheckReady].Status == CheckStatusReady
	liveOK := checks[CheckLive].Status == CheckStatusAlive

	switch {
	case healthOK && readyOK && liveOK:
		return StatusHealthy
	case liveOK:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
