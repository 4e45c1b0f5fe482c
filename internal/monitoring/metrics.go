package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics of the security pipeline.
type Metrics struct {
	RequestsValidated *prometheus.CounterVec
	RequestsRejected  *prometheus.CounterVec
	PipelineLatency   *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec
	PIIRedactions     prometheus.Counter
	MemoryInUse       prometheus.Gauge
}

// NewMetrics creates and registers the Prometheus metrics on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestsValidated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docshield_requests_validated_total",
				Help: "Total number of requests that cleared every defense layer.",
			},
			[]string{"client_id"},
		),
		RequestsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docshield_requests_rejected_total",
				Help: "Total number of requests rejected, by layer and error code.",
			},
			[]string{"layer", "code"},
		),
		PipelineLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docshield_pipeline_latency_seconds",
				Help:    "End-to-end latency of the validation pipeline.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docshield_rate_limit_hits_total",
				Help: "Total number of rate limit rejections.",
			},
			[]string{"reason"},
		),
		PIIRedactions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docshield_pii_redactions_total",
				Help: "Total number of fields with PII masked in place.",
			},
		),
		MemoryInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docshield_memory_reserved_bytes",
				Help: "Bytes currently reserved by the memory accountant.",
			},
		),
	}
}

// RecordValidated records one fully validated request.
func (m *Metrics) RecordValidated(clientID string, duration time.Duration) {
	m.RequestsValidated.WithLabelValues(clientID).Inc()
	m.PipelineLatency.WithLabelValues("allowed").Observe(duration.Seconds())
}

// RecordRejected records one rejected request.
func (m *Metrics) RecordRejected(layer, code string, duration time.Duration) {
	m.RequestsRejected.WithLabelValues(layer, code).Inc()
	m.PipelineLatency.WithLabelValues("rejected").Observe(duration.Seconds())
}

// RecordRateLimitHit records a throttling decision by reason.
func (m *Metrics) RecordRateLimitHit(reason string) {
	m.RateLimitHits.WithLabelValues(reason).Inc()
}
