package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonDB               = "db"
	JobReasonUnknown          = "unknown"
)

// WorkerMetrics captures job and queue health signals for the worker process.
type WorkerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobTimeouts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	queueOps *prometheus.CounterVec

	emailsSent   prometheus.Counter
	emailsFailed prometheus.Counter
	emailRetries prometheus.Counter

	refundsApplied prometheus.Counter
	refundsSkipped *prometheus.CounterVec
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the singleton worker metrics registry.
func Worker() *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer)
	})
	return workerMetrics
}

// ResetWorkerMetricsForTest clears the singleton so tests can swap registries.
func ResetWorkerMetricsForTest() {
	workerMetricsOnce = sync.Once{}
	workerMetrics = nil
}

func newWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	return &WorkerMetrics{
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficd_job_runs_total",
			Help: "Number of scheduled job runs.",
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficd_job_errors_total",
			Help: "Number of job runs that finished with an error.",
		}, []string{"job", "reason"}),
		jobTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficd_job_timeouts_total",
			Help: "Number of job runs that hit their deadline.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trafficd_job_duration_seconds",
			Help:    "Wall time of scheduled job runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		queueOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficd_queue_ops_total",
			Help: "Queue operations by queue key and operation.",
		}, []string{"queue", "op"}),
		emailsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "trafficd_emails_sent_total",
			Help: "Emails delivered successfully.",
		}),
		emailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "trafficd_emails_failed_total",
			Help: "Emails dropped after exhausting the retry budget.",
		}),
		emailRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "trafficd_email_retries_total",
			Help: "Email send attempts beyond the first.",
		}),
		refundsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "trafficd_refunds_applied_total",
			Help: "Refunds credited to wallets.",
		}),
		refundsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficd_refunds_skipped_total",
			Help: "Refund work items skipped, by reason.",
		}, []string{"reason"}),
	}
}

func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, jobErrorReason(err)).Inc()
}

func (m *WorkerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *WorkerMetrics) IncQueueOp(queue, op string) {
	if m == nil {
		return
	}
	m.queueOps.WithLabelValues(queue, op).Inc()
}

func (m *WorkerMetrics) IncEmailSent() {
	if m == nil {
		return
	}
	m.emailsSent.Inc()
}

func (m *WorkerMetrics) IncEmailFailed() {
	if m == nil {
		return
	}
	m.emailsFailed.Inc()
}

func (m *WorkerMetrics) IncEmailRetry() {
	if m == nil {
		return
	}
	m.emailRetries.Inc()
}

func (m *WorkerMetrics) IncRefundApplied() {
	if m == nil {
		return
	}
	m.refundsApplied.Inc()
}

func (m *WorkerMetrics) IncRefundSkipped(reason string) {
	if m == nil {
		return
	}
	m.refundsSkipped.WithLabelValues(reason).Inc()
}

func jobErrorReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, gorm.ErrRecordNotFound):
		return JobReasonDB
	default:
		return JobReasonUnknown
	}
}
