package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks gateway event ingestion outcomes.
type WebhookMetrics struct {
	ingested *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_ingested_total",
		Help: "Gateway webhook events by kind and ingest outcome.",
	}, []string{"kind", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_ingest_duration_seconds",
		Help:    "Time spent reconciling one gateway event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reg.MustRegister(ingested, latency)
	return &WebhookMetrics{
		ingested: ingested,
		latency:  latency,
	}
}

// IncIngested counts one ingested event with its outcome.
func (w *WebhookMetrics) IncIngested(kind, outcome string) {
	if w == nil || w.ingested == nil {
		return
	}
	w.ingested.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// ObserveIngest records how long reconciliation took for the event kind.
func (w *WebhookMetrics) ObserveIngest(kind string, duration time.Duration) {
	if w == nil || w.latency == nil {
		return
	}
	w.latency.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}
