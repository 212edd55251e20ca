package server

import (
	"math"
	"net/http"
	"time"

	"github.com/fleetmon/fleetmon/internal/health"
	"github.com/fleetmon/fleetmon/internal/testreport"
)

type summaryResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Services  serviceSummary `json:"services"`
	Metrics   metricsSummary `json:"metrics"`
	Tests     testsSummary   `json:"tests"`
}

type serviceSummary struct {
	Total            int     `json:"total"`
	Healthy          int     `json:"healthy"`
	Unhealthy        int     `json:"unhealthy"`
	HealthPercentage float64 `json:"health_percentage"`
}

type metricsSummary struct {
	Queries   int       `json:"queries"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type testsSummary struct {
	ServicesWithTests int     `json:"services_with_tests"`
	TotalTests        int     `json:"total_tests"`
	PassingTests      int     `json:"passing_tests"`
	FailingTests      int     `json:"failing_tests"`
	CoverageAvg       float64 `json:"coverage_avg"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.health == nil || s.metrics == nil || s.tests == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}

	resp := summaryResponse{
		Timestamp: time.Now().UTC(),
		Services:  summarizeServices(s.health.All()),
		Tests:     summarizeTests(s.tests.All()),
	}
	if snapshot, ok := s.metrics.Snapshot(); ok {
		resp.Metrics = metricsSummary{
			Queries:   len(snapshot.Metrics),
			Source:    snapshot.Source,
			Timestamp: snapshot.Timestamp,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func summarizeServices(results map[string]health.Result) serviceSummary {
	sum := serviceSummary{Total: len(results)}
	for _, result := range results {
		if result.Status == health.StatusHealthy {
			sum.Healthy++
		}
	}
	sum.Unhealthy = sum.Total - sum.Healthy
	if sum.Total > 0 {
		sum.HealthPercentage = round2(float64(sum.Healthy) / float64(sum.Total) * 100)
	}
	return sum
}

func summarizeTests(results map[string]testreport.Result) testsSummary {
	var sum testsSummary
	var coverage float64
	for _, result := range results {
		if result.Status == testreport.StatusUnknown {
			continue
		}
		sum.ServicesWithTests++
		sum.TotalTests += result.TotalTests
		sum.PassingTests += result.PassingTests
		sum.FailingTests += result.FailingTests
		coverage += result.Coverage
	}
	if sum.ServicesWithTests > 0 {
		sum.CoverageAvg = round2(coverage / float64(sum.ServicesWithTests))
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
