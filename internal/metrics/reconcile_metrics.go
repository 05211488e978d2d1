package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения метки result.
const (
	ResultSuccess  = "success"
	ResultNoOp     = "noop"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// ReconcileMetrics содержит метрики согласования заказов с провайдером.
type ReconcileMetrics struct {
	operations     *prometheus.CounterVec
	vendorCalls    *prometheus.CounterVec
	vendorDuration *prometheus.HistogramVec
	markers        *prometheus.CounterVec

	pollerScheduled prometheus.Counter
	pollerFired     *prometheus.CounterVec
	pollerPending   prometheus.Gauge

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewReconcileMetrics создаёт метрики в глобальном реестре Prometheus.
func NewReconcileMetrics() *ReconcileMetrics {
	return NewReconcileMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewReconcileMetricsWithRegisterer создаёт метрики в указанном реестре (изолированные тесты).
func NewReconcileMetricsWithRegisterer(registerer prometheus.Registerer) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconcileMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "sveapay_reconcile_operations_total",
			Help: "Total number of reconciliation operations by payment method, operation and result",
		}, []string{"method", "operation", "result"}),
		vendorCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "sveapay_vendor_calls_total",
			Help: "Total number of vendor gateway calls",
		}, []string{"family", "call", "result"}),
		vendorDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "sveapay_vendor_call_duration_seconds",
			Help:    "Duration of vendor gateway calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"family", "call"}),
		markers: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "sveapay_line_item_markers_total",
			Help: "Total number of delivered/credited line item markers written",
		}, []string{"marker"}),
		pollerScheduled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sveapay_strong_auth_checks_scheduled_total",
			Help: "Total number of deferred strong authentication checks scheduled",
		}),
		pollerFired: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "sveapay_strong_auth_checks_fired_total",
			Help: "Total number of deferred strong authentication checks executed by outcome",
		}, []string{"outcome"}),
		pollerPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "sveapay_strong_auth_checks_pending",
			Help: "Number of armed strong authentication timers",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sveapay_order_notes_total",
			Help: "Total number of order notes recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sveapay_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		}),
	}
}

// RecordOperation фиксирует результат одной операции согласования.
func (m *ReconcileMetrics) RecordOperation(method, operation, result string) {
	m.operations.WithLabelValues(method, operation, result).Inc()
}

// RecordVendorCall фиксирует вызов провайдера и его длительность.
func (m *ReconcileMetrics) RecordVendorCall(family, call, result string, duration time.Duration) {
	m.vendorCalls.WithLabelValues(family, call, result).Inc()
	m.vendorDuration.WithLabelValues(family, call).Observe(duration.Seconds())
}

// RecordMarkers увеличивает счётчик выставленных маркеров (delivered/credited).
func (m *ReconcileMetrics) RecordMarkers(marker string, n int) {
	if n <= 0 {
		return
	}
	m.markers.WithLabelValues(marker).Add(float64(n))
}

// RecordPollerScheduled вызывается при постановке отложенной проверки.
func (m *ReconcileMetrics) RecordPollerScheduled() {
	m.pollerScheduled.Inc()
	m.pollerPending.Inc()
}

// RecordPollerFired вызывается при срабатывании или отмене таймера проверки.
func (m *ReconcileMetrics) RecordPollerFired(outcome string) {
	m.pollerFired.WithLabelValues(outcome).Inc()
	m.pollerPending.Dec()
}

// RecordTimelineEvent увеличивает счётчик заметок заказа.
func (m *ReconcileMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ReconcileMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
