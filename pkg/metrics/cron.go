package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records maintenance job runs and the reconciliation backlog.
type CronJobMetrics struct {
	duration       *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	reconciliation prometheus.Gauge
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Maintenance job executions by result.",
	}, []string{"job", "result"})
	reconciliation := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orders_reconciliation_pending",
		Help: "Orders whose captured payment still needs manual reconciliation.",
	})
	reg.MustRegister(duration, runs, reconciliation)
	return &CronJobMetrics{duration: duration, runs: runs, reconciliation: reconciliation}
}

func (m *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	m.incRun(job, "success")
}

func (m *CronJobMetrics) IncFailure(job string) {
	m.incRun(job, "failure")
}

// SetReconciliationPending publishes the latest backlog count.
func (m *CronJobMetrics) SetReconciliationPending(n int64) {
	if m == nil || m.reconciliation == nil {
		return
	}
	m.reconciliation.Set(float64(n))
}

func (m *CronJobMetrics) incRun(job, result string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), result).Inc()
}
