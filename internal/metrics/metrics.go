package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobcore_jobs_submitted_total",
		Help: "Total number of jobs enqueued",
	})

	JobsForwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobcore_gateway_jobs_forwarded_total",
		Help: "Total number of jobs the gateway forwarded to a worker",
	})

	JobOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobcore_job_outcomes_total",
		Help: "Total number of recorded job outcomes by status",
	}, []string{"job_type", "status"})

	JobsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobcore_jobs_idempotent_skips_total",
		Help: "Total number of jobs skipped because their idempotency key was already processed",
	})

	JobsResubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobcore_jobs_resubmitted_total",
		Help: "Total number of failed jobs re-enqueued for another attempt",
	})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobcore_job_processing_duration_seconds",
		Help:    "Time taken to process jobs in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobcore_queue_depth",
		Help: "Current number of queued jobs",
	})

	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobcore_storage_retry_attempts_total",
		Help: "Total number of retries scheduled by the retry policy by status classification",
	}, []string{"status"})

	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jobcore_circuit_state",
		Help: "Circuit state per service (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})
)
