package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewShopMetrics(t *testing.T) {
	m := newShopMetricsWithRegisterer(prometheus.NewRegistry())

	if m == nil {
		t.Fatal("newShopMetricsWithRegisterer should not return nil")
	}
	if m.reservationsCreated == nil {
		t.Error("reservationsCreated counter should not be nil")
	}
	if m.reservationsRejected == nil {
		t.Error("reservationsRejected counter vec should not be nil")
	}
	if m.ordersPaid == nil {
		t.Error("ordersPaid counter should not be nil")
	}
	if m.ordersDelivered == nil {
		t.Error("ordersDelivered counter should not be nil")
	}
	if m.claimDuration == nil {
		t.Error("claimDuration histogram should not be nil")
	}
	if m.recomputeRuns == nil {
		t.Error("recomputeRuns counter should not be nil")
	}
}

func TestNewShopMetrics_DoubleRegistrationReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newShopMetricsWithRegisterer(reg)
	second := newShopMetricsWithRegisterer(reg)

	first.RecordReservationCreated()
	second.RecordReservationCreated()

	metric := &dto.Metric{}
	if err := second.reservationsCreated.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordReservationRejected(t *testing.T) {
	m := newShopMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordReservationRejected("out_of_stock")
	m.RecordReservationRejected("out_of_stock")
	m.RecordReservationRejected("insufficient_points")

	metric := &dto.Metric{}
	observer := m.reservationsRejected.WithLabelValues("out_of_stock")
	if err := observer.(prometheus.Counter).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 out_of_stock rejections, got %f", metric.Counter.GetValue())
	}
}

func TestRecordClaimDuration(t *testing.T) {
	m := newShopMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordClaimDuration(10 * time.Millisecond)
	m.RecordClaimDuration(50 * time.Millisecond)

	metric := &dto.Metric{}
	if err := m.claimDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestOrderLifecycleCounters(t *testing.T) {
	m := newShopMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOrderPaid()
	m.RecordOrderDelivered()
	m.RecordOrderRefunded()
	m.RecordOrderCancelled()
	m.RecordOrderCancelled()

	metric := &dto.Metric{}
	if err := m.ordersCancelled.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 cancellations, got %f", metric.Counter.GetValue())
	}
}
