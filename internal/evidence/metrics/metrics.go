package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the evidence ledger.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DraftsCreated        prometheus.Counter
	Seals                *prometheus.CounterVec
	QuarantinePastDue    prometheus.Counter
	QuarantineResolved   prometheus.Counter
	IdempotentReplays    *prometheus.CounterVec
	IdempotencyRejected  *prometheus.CounterVec
	SealDuration         prometheus.Histogram
	PayloadBytes         prometheus.Histogram
	OutboxPublished      prometheus.Counter
	OutboxPublishFailure prometheus.Counter
}

// New creates a new Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DraftsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_drafts_created_total",
			Help: "Total number of evidence drafts created",
		}),
		Seals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_seals_total",
			Help: "Seal transitions by outcome state",
		}, []string{"outcome"}),
		QuarantinePastDue: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_quarantine_past_due_total",
			Help: "Seals that quarantined evidence whose resolution deadline had already passed",
		}),
		QuarantineResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_quarantine_resolved_total",
			Help: "Quarantined records resolved to SEALED",
		}),
		IdempotentReplays: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_idempotent_replays_total",
			Help: "Mutations answered from the idempotency store",
		}, []string{"operation"}),
		IdempotencyRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_idempotency_rejected_total",
			Help: "Mutations rejected by the idempotency guard, by error code",
		}, []string{"code"}),
		SealDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "evidence_seal_duration_seconds",
			Help:    "Duration of seal transitions including payload hashing",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		PayloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "evidence_payload_bytes",
			Help:    "Size of attached payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_outbox_published_total",
			Help: "Audit outbox entries published to Kafka",
		}),
		OutboxPublishFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_outbox_publish_failures_total",
			Help: "Failed audit outbox publish attempts",
		}),
	}
}

func (m *Metrics) IncrementDraftsCreated() {
	if m == nil {
		return
	}
	m.DraftsCreated.Inc()
}

func (m *Metrics) IncrementSeal(outcome string) {
	if m == nil {
		return
	}
	m.Seals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementQuarantinePastDue() {
	if m == nil {
		return
	}
	m.QuarantinePastDue.Inc()
}

func (m *Metrics) IncrementQuarantineResolved() {
	if m == nil {
		return
	}
	m.QuarantineResolved.Inc()
}

func (m *Metrics) IncrementReplay(operation string) {
	if m == nil {
		return
	}
	m.IdempotentReplays.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementIdempotencyRejected(code string) {
	if m == nil {
		return
	}
	m.IdempotencyRejected.WithLabelValues(code).Inc()
}

// ObserveSeal records the duration of a seal transition.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSeal(start time.Time) {
	if m == nil {
		return
	}
	m.SealDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObservePayloadBytes(n int64) {
	if m == nil {
		return
	}
	m.PayloadBytes.Observe(float64(n))
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailure() {
	if m == nil {
		return
	}
	m.OutboxPublishFailure.Inc()
}
