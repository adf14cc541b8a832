// Package middleware provides cross-cutting concerns for the quest service.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/questlog/infrastructure/llm"
	"github.com/ahrav/questlog/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It covers classifier traffic, verification outcomes, and HTTP requests.
// It also implements llm.CircuitBreakerMetrics.
type PrometheusMetrics struct {
	llmLatency     *prometheus.HistogramVec
	llmRequests    *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	llmImages      *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	pointsAwarded  *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	breakerState   prometheus.Gauge
	breakerEvents  *prometheus.CounterVec
	operationCount *prometheus.CounterVec
	operationTime  *prometheus.HistogramVec
	systemGauges   *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers its
// collectors with reg. Passing prometheus.DefaultRegisterer exposes them on
// the default /metrics handler.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		llmLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "questlog_llm_request_duration_seconds",
				Help:    "Latency of vision classifier requests.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"provider", "model", "status"},
		),
		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_llm_requests_total",
				Help: "Vision classifier requests by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_llm_tokens_total",
				Help: "Tokens consumed by the vision classifier.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmImages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_llm_images_total",
				Help: "Images sent to the vision classifier.",
			},
			[]string{"provider", "model"},
		),
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_verifications_total",
				Help: "Proof verification attempts by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		pointsAwarded: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "questlog_points_awarded",
				Help:    "Points awarded per accepted verification.",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"kind", "category"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "questlog_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		breakerState: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "questlog_llm_circuit_state",
				Help: "Classifier circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
		),
		breakerEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_llm_circuit_events_total",
				Help: "Classifier circuit breaker outcomes.",
			},
			[]string{"event"},
		),
		operationCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questlog_operations_total",
				Help: "Counters without a dedicated collector.",
			},
			[]string{"metric"},
		),
		operationTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "questlog_operation_duration_seconds",
				Help:    "Latency of named operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		systemGauges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "questlog_system_state",
				Help: "Point-in-time values reported by the service.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if operation == ports.MetricHTTPLatency {
		pm.httpLatency.WithLabelValues(labels["method"], labels["route"]).Observe(duration.Seconds())
		return
	}
	pm.operationTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(labels["provider"], labels["model"], labels["token_type"]).Add(value)
	case llm.MetricLLMImages:
		pm.llmImages.WithLabelValues(labels["provider"], labels["model"]).Add(value)
	case ports.MetricVerifications:
		pm.verifications.WithLabelValues(labels["kind"], labels["outcome"]).Add(value)
	case ports.MetricHTTPRequests:
		pm.httpRequests.WithLabelValues(labels["method"], labels["route"], labels["code"]).Add(value)
	default:
		pm.operationCount.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Observe(value)
	case ports.MetricPointsAwarded:
		pm.pointsAwarded.WithLabelValues(labels["kind"], labels["category"]).Observe(value)
	default:
		pm.operationTime.WithLabelValues(metric).Observe(value)
	}
}

// RecordState implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordState(state llm.CircuitBreakerState) {
	pm.breakerState.Set(float64(state))
}

// RecordTrip implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordTrip() { pm.breakerEvents.WithLabelValues("rejected").Inc() }

// RecordSuccess implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordSuccess() { pm.breakerEvents.WithLabelValues("success").Inc() }

// RecordFailure implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordFailure() { pm.breakerEvents.WithLabelValues("failure").Inc() }

// Compile-time verification of the implemented interfaces.
var (
	_ ports.MetricsCollector    = (*PrometheusMetrics)(nil)
	_ llm.CircuitBreakerMetrics = (*PrometheusMetrics)(nil)
)
