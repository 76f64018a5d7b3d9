package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestConfirmationMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConfirmationMetrics(reg)

	m.ObserveConfirmation(OutcomeConfirmed, 20*time.Millisecond)
	m.ObserveConfirmation(OutcomeConfirmed, 30*time.Millisecond)
	m.ObserveConfirmation(OutcomeConflict, 5*time.Millisecond)
	m.AddTaskCreated("weaving")
	m.AddTaskCreated("coating")
	m.AddTaskCreated("coating")
	m.AddAllocated(40)
	m.AddAllocated(-3)
	m.IncTaskTransition("completed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "millflow_confirmation_total", "outcome", OutcomeConfirmed); err != nil || got != 2 {
		t.Fatalf("expected confirmed=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "millflow_confirmation_total", "outcome", OutcomeConflict); err != nil || got != 1 {
		t.Fatalf("expected conflict=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "millflow_confirmation_duration_seconds", "outcome", OutcomeConfirmed); err != nil || got <= 0 {
		t.Fatalf("expected confirmed duration > 0, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "millflow_production_tasks_created_total", "type", "coating"); err != nil || got != 2 {
		t.Fatalf("expected coating=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "millflow_production_task_transitions_total", "to", "completed"); err != nil || got != 1 {
		t.Fatalf("expected completed=1, got %f err=%v", got, err)
	}

	mf := findMetricFamily(mfs, "millflow_confirmation_stock_allocated_total")
	if mf == nil || len(mf.GetMetric()) != 1 || mf.GetMetric()[0].GetCounter().GetValue() != 40 {
		t.Fatalf("expected allocated counter 40")
	}
}

func TestConfirmationMetricsNilSafe(t *testing.T) {
	var m *ConfirmationMetrics
	m.ObserveConfirmation(OutcomeFailed, time.Second)
	m.AddTaskCreated("weaving")
	m.AddAllocated(1)
	m.IncTaskTransition("pending")
}
