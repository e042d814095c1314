package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed by the Gateway's
// control loop (spec.md §7 observability surface). Grounded on the
// teacher's internal/metrics.Collector shape, narrowed to the Gateway's
// own concerns.
type Metrics struct {
	eventsProcessed   *prometheus.CounterVec
	pipelineDuration  prometheus.Histogram
	agentDuration     *prometheus.HistogramVec
	diarySaveFailures prometheus.Counter
	dlqSize           prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors against the default
// registry under the "medforce_gateway" namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medforce_gateway",
			Name:      "events_processed_total",
			Help:      "Total events processed by outcome.",
		}, []string{"outcome"}),
		pipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medforce_gateway",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end ProcessEvent duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		agentDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medforce_gateway",
			Name:      "agent_duration_seconds",
			Help:      "Per-agent Process() duration.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"agent"}),
		diarySaveFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "medforce_gateway",
			Name:      "diary_save_failures_total",
			Help:      "Background diary saves that exhausted all retries.",
		}),
		dlqSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "medforce_gateway",
			Name:      "dead_letter_queue_size",
			Help:      "Current number of entries held in the dead-letter queue.",
		}),
	}
}

// IncProcessed records one processed event under the given outcome label
// (e.g. "processed", "duplicate", "rate_limited", "permission_denied").
func (m *Metrics) IncProcessed(outcome string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(outcome).Inc()
}

// ObservePipelineDuration records one full ProcessEvent call's wall time.
func (m *Metrics) ObservePipelineDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

// ObserveAgentDuration records one agent's Process() wall time.
func (m *Metrics) ObserveAgentDuration(agent string, d time.Duration) {
	if m == nil {
		return
	}
	m.agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// IncSaveFailure records a background diary save that exhausted retries.
func (m *Metrics) IncSaveFailure() {
	if m == nil {
		return
	}
	m.diarySaveFailures.Inc()
}

// SetDLQSize updates the dead-letter queue size gauge.
func (m *Metrics) SetDLQSize(n int) {
	if m == nil {
		return
	}
	m.dlqSize.Set(float64(n))
}
