package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Итоги публикации события outbox.
const (
	PublishSent       = "sent"
	PublishRetry      = "retry"
	PublishFailed     = "failed"
	PublishDeadLetter = "dead_letter"
	PublishDLQFailed  = "dlq_failed"
)

// OutboxMetrics описывает доставку событий outbox во внешний брокер.
type OutboxMetrics struct {
	publish   *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetricsWithRegisterer создаёт метрики relay в указанном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		publish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "sveapay_outbox_publish_total",
			Help: "Outbox publish attempts by event type and result",
		}, []string{"event_type", "result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "sveapay_outbox_pending_records",
			Help: "Pending records in the transactional outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "sveapay_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record",
		}),
	}
}

// RecordPublish фиксирует одну попытку публикации.
func (m *OutboxMetrics) RecordPublish(eventType, result string) {
	m.publish.WithLabelValues(eventType, result).Inc()
}

// SetBacklog обновляет размер backlog. Пустой backlog обнуляет возраст.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Duration) {
	m.pending.Set(float64(pending))
	if pending == 0 || oldest < 0 {
		oldest = 0
	}
	m.oldestAge.Set(oldest.Seconds())
}
