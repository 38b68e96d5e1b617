package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox delivery results.
const (
	OutboxResultPublished = "published"
	OutboxResultRetry     = "retry"
	OutboxResultDead      = "dead_letter"
)

// OutboxMetrics tracks what the publisher did with each outbox row.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	batch      prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_outbox_delivery_total",
			Help: "Outbox rows handled by the publisher, by event type and result.",
		}, []string{"event_type", "result"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealflow_outbox_batch_rows",
			Help:    "Rows claimed per publisher poll.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.deliveries, m.batch)
	return m
}

func (m *OutboxMetrics) IncDelivery(eventType, result string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batch == nil || rows == 0 {
		return
	}
	m.batch.Observe(float64(rows))
}
