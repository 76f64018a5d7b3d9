package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "millflow"

// Cron job results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// CronJobMetrics covers the cron worker: per-job runs and timing, and cycles
// skipped because another worker held the lock.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job runs by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Duration of cron job runs in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because the cron lock was held elsewhere.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one run of job that started at started and ended now.
func (c *CronJobMetrics) ObserveRun(job string, started time.Time, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	now := time.Now()
	c.duration.WithLabelValues(job).Observe(now.Sub(started).Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, ResultFailed).Inc()
		return
	}
	c.runs.WithLabelValues(job, ResultOK).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(now.Unix()))
}

func (c *CronJobMetrics) CycleSkipped() {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
