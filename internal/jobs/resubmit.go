package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/metrics"
)

// HandlerLookup reports whether a job type can be dispatched
type HandlerLookup interface {
	Has(jobType string) bool
}

// Resubmitter is an opt-in OutcomeRecorder that re-enqueues failed jobs with
// attempts remaining. The redelivery keeps the job id and idempotency key,
// increments the attempt and waits base*2^(attempt-1), capped at five minutes.
// Poisoned outcomes and jobs without a registered handler are left alone.
type Resubmitter struct {
	queue     Enqueuer
	handlers  HandlerLookup
	baseDelay time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewResubmitter creates a Resubmitter feeding queue
func NewResubmitter(queue Enqueuer, handlers HandlerLookup, baseDelay time.Duration) *Resubmitter {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Resubmitter{
		queue:     queue,
		handlers:  handlers,
		baseDelay: baseDelay,
		logger:    logger.WithComponent("resubmitter"),
		pending:   make(map[string]*time.Timer),
	}
}

// Record implements interfaces.OutcomeRecorder
func (r *Resubmitter) Record(_ context.Context, job *interfaces.JobContract, outcome interfaces.JobOutcome) {
	if outcome.Status != interfaces.StatusFailed || !job.CanRetry() {
		return
	}
	if r.handlers != nil && !r.handlers.Has(job.JobType) {
		return
	}

	next := job.NextAttempt()
	delay := job.RetryDelay(r.baseDelay)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, scheduled := r.pending[job.ID]; scheduled {
		return
	}
	r.pending[job.ID] = time.AfterFunc(delay, func() { r.fire(next) })

	r.logger.Info().
		Str("job_id", job.ID).
		Int("attempt", next.Attempt).
		Int("max_attempts", next.MaxAttempts).
		Dur("delay", delay).
		Msg("Job failed, will resubmit")
}

func (r *Resubmitter) fire(job *interfaces.JobContract) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.pending, job.ID)
	r.mu.Unlock()

	if err := r.queue.EnqueueJob(job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to resubmit job")
		return
	}
	metrics.JobsResubmittedTotal.Inc()
}

// Pending returns the number of scheduled resubmissions
func (r *Resubmitter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close cancels every scheduled resubmission
func (r *Resubmitter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.pending {
		t.Stop()
		delete(r.pending, id)
	}
}
