package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ahrav/questlog/infrastructure/llm"
	"github.com/ahrav/questlog/internal/ports"
)

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

func TestPrometheusMetrics_LLMCounters(t *testing.T) {
	pm := newTestMetrics(t)
	labels := map[string]string{"provider": "openai", "model": "gpt-4o-mini", "status": "success"}

	pm.RecordCounter(llm.MetricLLMRequests, 1, labels)
	pm.RecordCounter(llm.MetricLLMRequests, 1, labels)
	pm.RecordCounter(llm.MetricLLMTokens, 120, map[string]string{"provider": "openai", "model": "gpt-4o-mini", "token_type": "input"})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("openai", "gpt-4o-mini", "success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "gpt-4o-mini", "input")))
}

func TestPrometheusMetrics_Verifications(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordCounter(ports.MetricVerifications, 1, map[string]string{"kind": "verify", "outcome": "accepted"})
	pm.RecordCounter(ports.MetricVerifications, 1, map[string]string{"kind": "verify", "outcome": "rejected"})
	pm.RecordCounter(ports.MetricVerifications, 1, map[string]string{"kind": "verify", "outcome": "accepted"})
	pm.RecordHistogram(ports.MetricPointsAwarded, 5, map[string]string{"kind": "verify", "category": "main"})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.verifications.WithLabelValues("verify", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.verifications.WithLabelValues("verify", "rejected")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.pointsAwarded))
}

func TestPrometheusMetrics_HTTP(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordCounter(ports.MetricHTTPRequests, 1, map[string]string{"method": "POST", "route": "/tasks/{id}/verify", "code": "200"})
	pm.RecordLatency(ports.MetricHTTPLatency, 150*time.Millisecond, map[string]string{"method": "POST", "route": "/tasks/{id}/verify"})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.httpRequests.WithLabelValues("POST", "/tasks/{id}/verify", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.httpLatency))
}

func TestPrometheusMetrics_FallbackCollectors(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordCounter("something_else", 3, nil)
	pm.RecordGauge(ports.MetricRetriesLeft, 2, nil)
	pm.RecordLatency("store.apply_verification", time.Millisecond, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.operationCount.WithLabelValues("something_else")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues(ports.MetricRetriesLeft)))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.operationTime))
}

func TestPrometheusMetrics_CircuitBreaker(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordFailure()
	pm.RecordTrip()
	pm.RecordTrip()
	pm.RecordState(llm.StateOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerState))
}

func TestNewPrometheusMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})
}
