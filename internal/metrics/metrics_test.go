package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	// Touch one series per vector so Gather has something to report
	m.JobsStartedTotal.WithLabelValues("TEST")
	m.DeliveriesTotal.WithLabelValues("SENT")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"splaro_jobs_started_total", "splaro_deliveries_total", "splaro_jobs_running", "splaro_clicks_total"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}

	SetGlobal(nil)
}

func TestJobMetrics(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncJobsStarted("SEND_NOW")
	IncJobsStarted("SEND_NOW")
	IncJobsStarted("TEST")
	ObserveJobFinished("SEND_NOW", "SUCCEEDED", 1.5)

	if got := counterValue(t, m.JobsStartedTotal.WithLabelValues("SEND_NOW")); got != 2 {
		t.Errorf("started SEND_NOW = %v, want 2", got)
	}
	if got := counterValue(t, m.JobsFinishedTotal.WithLabelValues("SEND_NOW", "SUCCEEDED")); got != 1 {
		t.Errorf("finished = %v, want 1", got)
	}
	if got := gaugeValue(t, m.JobsRunning); got != 2 {
		t.Errorf("running = %v, want 2", got)
	}

	IncJobsRejected("already_running")
	if got := counterValue(t, m.JobsRejectedTotal.WithLabelValues("already_running")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

func TestDeliveryMetrics(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	ObserveDelivery("SENT", 0.02)
	ObserveDelivery("SENT", 0.03)
	ObserveDelivery("FAILED", 0)
	IncDeliveryErrors("temporary")
	IncDeliveryErrors("temporary")
	IncDeliveryErrors("permanent")
	IncDeliveriesUnrecorded()
	IncClicks()

	if got := counterValue(t, m.DeliveriesTotal.WithLabelValues("SENT")); got != 2 {
		t.Errorf("sent = %v, want 2", got)
	}
	if got := counterValue(t, m.DeliveriesTotal.WithLabelValues("FAILED")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := counterValue(t, m.ClicksTotal); got != 1 {
		t.Errorf("clicks = %v, want 1", got)
	}

	errorTests := []struct {
		kind string
		want float64
	}{
		{"temporary", 2},
		{"permanent", 1},
	}
	for _, tt := range errorTests {
		if got := counterValue(t, m.DeliveryErrorsTotal.WithLabelValues(tt.kind)); got != tt.want {
			t.Errorf("delivery errors %s = %v, want %v", tt.kind, got, tt.want)
		}
	}
	if got := counterValue(t, m.DeliveriesUnrecorded); got != 1 {
		t.Errorf("unrecorded = %v, want 1", got)
	}

	var metric dto.Metric
	if err := m.DeliveryDurationSeconds.Write(&metric); err != nil {
		t.Fatalf("Failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("duration samples = %d, want 2", metric.Histogram.GetSampleCount())
	}
}

func TestSchedulerMetrics(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncSchedulerTicks("ok")
	IncSchedulerTicks("error")
	IncScheduledFires("started")
	IncScheduledFires("started")
	IncScheduledFires("paused")

	if got := counterValue(t, m.SchedulerTicksTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ticks ok = %v, want 1", got)
	}
	if got := counterValue(t, m.ScheduledFiresTotal.WithLabelValues("started")); got != 2 {
		t.Errorf("fires started = %v, want 2", got)
	}
}

func TestGlobalNilSafe(t *testing.T) {
	SetGlobal(nil)

	// None of these may panic without a registry
	IncJobsStarted("TEST")
	ObserveJobFinished("TEST", "SUCCEEDED", 1)
	IncJobsRejected("paused")
	ObserveDelivery("SENT", 1)
	IncDeliveryErrors("permanent")
	IncDeliveriesUnrecorded()
	IncClicks()
	IncSchedulerTicks("ok")
	IncScheduledFires("started")
	IncAPIErrors("not_found")
}
