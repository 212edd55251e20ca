package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry wraps the aggregator's own Prometheus collectors.
type Telemetry struct {
	registry            *prometheus.Registry
	healthCheckRequests prometheus.Counter
	healthCheckSuccess  *prometheus.CounterVec
	healthCheckFailure  *prometheus.CounterVec
	healthCheckLatency  *prometheus.HistogramVec
	serviceUp           *prometheus.GaugeVec
	statusTransitions   *prometheus.CounterVec
	passDurationSeconds *prometheus.HistogramVec
	lastPassTimestamp   *prometheus.GaugeVec
	queryErrorsTotal    *prometheus.CounterVec
}

// New initializes a Telemetry registry with all collectors registered.
func New() *Telemetry {
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		registry: registry,
		healthCheckRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetmon_health_check_requests_total",
			Help: "Total health probes issued across all services.",
		}),
		healthCheckSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmon_health_check_success_total",
			Help: "Health probes that found the service healthy.",
		}, []string{"service"}),
		healthCheckFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmon_health_check_failure_total",
			Help: "Health probes that found the service degraded or unhealthy.",
		}, []string{"service"}),
		healthCheckLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetmon_health_check_latency_seconds",
			Help:    "Latency of the health endpoint probe in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetmon_service_up",
			Help: "1 if the service's composite status is healthy, 0 otherwise.",
		}, []string{"service"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmon_status_transitions_total",
			Help: "Composite status transitions observed, by new status.",
		}, []string{"service", "status"}),
		passDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetmon_pass_duration_seconds",
			Help:    "Duration of collection passes in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
		lastPassTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetmon_last_pass_timestamp",
			Help: "Unix timestamp of the last completed pass.",
		}, []string{"collector"}),
		queryErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetmon_query_errors_total",
			Help: "Metrics backend queries that failed after retries.",
		}, []string{"query"}),
	}

	registry.MustRegister(
		t.healthCheckRequests,
		t.healthCheckSuccess,
		t.healthCheckFailure,
		t.healthCheckLatency,
		t.serviceUp,
		t.statusTransitions,
		t.passDurationSeconds,
		t.lastPassTimestamp,
		t.queryErrorsTotal,
	)

	return t
}

// Handler returns a Prometheus HTTP handler for this registry.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// ObserveHealthCheck records the outcome of one service's health probe.
func (t *Telemetry) ObserveHealthCheck(service string, healthy bool, latencySeconds float64) {
	if t == nil {
		return
	}
	t.healthCheckRequests.Inc()
	if healthy {
		t.healthCheckSuccess.WithLabelValues(service).Inc()
		t.serviceUp.WithLabelValues(service).Set(1)
	} else {
		t.healthCheckFailure.WithLabelValues(service).Inc()
		t.serviceUp.WithLabelValues(service).Set(0)
	}
	if latencySeconds > 0 {
		t.healthCheckLatency.WithLabelValues(service).Observe(latencySeconds)
	}
}

// CountTransition increments the transition counter for a service.
func (t *Telemetry) CountTransition(service, status string) {
	if t == nil {
		return
	}
	t.statusTransitions.WithLabelValues(service, status).Inc()
}

// ObservePass records a completed collection pass.
func (t *Telemetry) ObservePass(collector string, elapsed time.Duration) {
	if t == nil {
		return
	}
	t.passDurationSeconds.WithLabelValues(collector).Observe(elapsed.Seconds())
	t.lastPassTimestamp.WithLabelValues(collector).SetToCurrentTime()
}

// CountQueryError increments the failed-query counter.
func (t *Telemetry) CountQueryError(query string) {
	if t == nil {
		return
	}
	t.queryErrorsTotal.WithLabelValues(query).Inc()
}
