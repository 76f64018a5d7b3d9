package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Confirmation outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeReplayed  = "replayed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

// ConfirmationMetrics tracks order-line confirmations and production task transitions.
type ConfirmationMetrics struct {
	outcomes    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tasks       *prometheus.CounterVec
	allocated   prometheus.Counter
	transitions *prometheus.CounterVec
}

func NewConfirmationMetrics(reg prometheus.Registerer) *ConfirmationMetrics {
	if reg == nil {
		return &ConfirmationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "confirmation",
		Name:      "total",
		Help:      "Order-line confirmations by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "confirmation",
		Name:      "duration_seconds",
		Help:      "Duration of order-line confirmations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "production",
		Name:      "tasks_created_total",
		Help:      "Production tasks created at confirmation, by type.",
	}, []string{"type"})
	allocated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "confirmation",
		Name:      "stock_allocated_total",
		Help:      "Finished-good quantity allocated from stock.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "production",
		Name:      "task_transitions_total",
		Help:      "Production task status transitions.",
	}, []string{"to"})
	reg.MustRegister(outcomes, duration, tasks, allocated, transitions)
	return &ConfirmationMetrics{
		outcomes:    outcomes,
		duration:    duration,
		tasks:       tasks,
		allocated:   allocated,
		transitions: transitions,
	}
}

// ObserveConfirmation records one confirmation attempt.
func (m *ConfirmationMetrics) ObserveConfirmation(outcome string, duration time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.outcomes.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
}

func (m *ConfirmationMetrics) AddTaskCreated(taskType string) {
	if m == nil || m.tasks == nil {
		return
	}
	m.tasks.WithLabelValues(normalizeLabel(taskType)).Inc()
}

// AddAllocated adds quantity, expressed as a float, to the allocation counter.
func (m *ConfirmationMetrics) AddAllocated(quantity float64) {
	if m == nil || m.allocated == nil || quantity <= 0 {
		return
	}
	m.allocated.Add(quantity)
}

func (m *ConfirmationMetrics) IncTaskTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}
