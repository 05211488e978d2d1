package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestReconcileMetrics_RecordOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetricsWithRegisterer(reg)

	m.RecordOperation("sveawebpay_invoice", "deliver", ResultSuccess)
	m.RecordOperation("sveawebpay_invoice", "deliver", ResultSuccess)
	m.RecordOperation("sveawebpay_invoice", "deliver", ResultNoOp)

	metric := &dto.Metric{}
	if err := m.operations.WithLabelValues("sveawebpay_invoice", "deliver", ResultSuccess).Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 successful operations, got %v", got)
	}
}

func TestReconcileMetrics_VendorCallHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetricsWithRegisterer(reg)

	m.RecordVendorCall("invoice", "deliver", ResultSuccess, 150*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() != "sveapay_vendor_call_duration_seconds" {
			continue
		}
		found = true
		if got := family.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
			t.Fatalf("expected 1 sample, got %d", got)
		}
	}
	if !found {
		t.Fatal("duration histogram not gathered")
	}
}

func TestReconcileMetrics_PollerGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetricsWithRegisterer(reg)

	m.RecordPollerScheduled()
	m.RecordPollerScheduled()
	m.RecordPollerFired("finished")

	metric := &dto.Metric{}
	if err := m.pollerPending.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected 1 pending timer, got %v", got)
	}
}

func TestReconcileMetrics_RecordMarkersIgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetricsWithRegisterer(reg)

	m.RecordMarkers("delivered", 0)
	m.RecordMarkers("delivered", 3)

	metric := &dto.Metric{}
	if err := m.markers.WithLabelValues("delivered").Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected 3 markers, got %v", got)
	}
}

func TestReconcileMetrics_SameRegistryReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewReconcileMetricsWithRegisterer(reg)
	second := NewReconcileMetricsWithRegisterer(reg)

	first.RecordOutboxEvent()
	second.RecordOutboxEvent()

	metric := &dto.Metric{}
	if err := first.outboxEvents.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestOutboxMetrics_Backlog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetricsWithRegisterer(reg)

	m.SetBacklog(3, 90*time.Second)
	m.RecordPublish("OrderStatusChanged", PublishSent)

	metric := &dto.Metric{}
	if err := m.oldestAge.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 90 {
		t.Fatalf("expected oldest age 90s, got %v", got)
	}

	m.SetBacklog(0, time.Hour)
	if err := m.oldestAge.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 0 {
		t.Fatalf("empty backlog must reset age, got %v", got)
	}
}
