package metrics

import (
	"encoding/json"
	"strings"
	"time"
)

// QueryData carries the result rows of one query in the backend's native
// encoding.
type QueryData struct {
	ResultType string            `json:"resultType"`
	Result     []json.RawMessage `json:"result"`
}

// QueryResult is the raw outcome of one named query.
type QueryResult struct {
	Status string    `json:"status"`
	Data   QueryData `json:"data"`
}

// Snapshot is one full metrics collection pass. A new pass replaces the
// snapshot wholesale; queries that failed are absent from Metrics.
type Snapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Metrics   map[string]QueryResult `json:"metrics"`
}

// ServiceMetrics is the per-service view over a snapshot.
type ServiceMetrics struct {
	Service   string                       `json:"service"`
	Timestamp time.Time                    `json:"timestamp"`
	Metrics   map[string][]json.RawMessage `json:"metrics"`
}

// FilterForService returns the rows of every query that mention the service
// name. Rows match on substring containment over their raw encoding; this
// is best-effort, not label-aware.
func (s Snapshot) FilterForService(name string) ServiceMetrics {
	view := ServiceMetrics{
		Service:   name,
		Timestamp: s.Timestamp,
		Metrics:   make(map[string][]json.RawMessage),
	}

	for queryName, result := range s.Metrics {
		var rows []json.RawMessage
		for _, row := range result.Data.Result {
			if strings.Contains(string(row), name) {
				rows = append(rows, row)
			}
		}
		if len(rows) > 0 {
			view.Metrics[queryName] = rows
		}
	}

	return view
}

func (s Snapshot) clone() Snapshot {
	metrics := make(map[string]QueryResult, len(s.Metrics))
	for name, result := range s.Metrics {
		metrics[name] = result
	}
	return Snapshot{Timestamp: s.Timestamp, Source: s.Source, Metrics: metrics}
}
