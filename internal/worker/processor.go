package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/metrics"
)

var (
	ErrInvalidJob       = errors.New("invalid job")
	ErrNoHandler        = errors.New("no handler registered")
	ErrProcessorRunning = errors.New("processor is running")
	ErrProcessorStopped = errors.New("processor has been stopped")
)

// seenKey tracks which job claimed an idempotency key
type seenKey struct {
	jobID     string
	completed bool
}

// Processor owns the in-process job queue and a single background loop that
// dispatches each job to the handler registered for its type.
//
// EnqueueJob may be called from any goroutine. Jobs are handled one at a time
// in FIFO order. Idempotency keys are remembered for the life of the process
// only.
type Processor struct {
	registry *jobs.Registry
	recorder interfaces.OutcomeRecorder
	logger   zerolog.Logger
	now      func() time.Time

	queue     *jobQueue
	processed atomic.Int64

	seenMu sync.Mutex
	seen   map[string]seenKey

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	runErr  error
}

// Option configures a Processor
type Option func(*Processor)

// WithRecorder sets where outcomes are recorded.
func WithRecorder(r interfaces.OutcomeRecorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithLogger sets the processor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a processor dispatching through registry
func NewProcessor(registry *jobs.Registry, opts ...Option) *Processor {
	p := &Processor{
		registry: registry,
		recorder: interfaces.RecorderFunc(func(context.Context, *interfaces.JobContract, interfaces.JobOutcome) {}),
		logger:   logger.WithComponent("processor"),
		now:      time.Now,
		queue:    newJobQueue(),
		seen:     make(map[string]seenKey),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnqueueJob appends job to the queue without blocking. Only structural
// checks are made: a missing id is generated and attempt counters below one
// are raised to one.
func (p *Processor) EnqueueJob(job *interfaces.JobContract) error {
	if job == nil {
		return fmt.Errorf("%w: nil contract", ErrInvalidJob)
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.MaxAttempts < 1 {
		job.MaxAttempts = 1
	}

	depth := p.queue.push(job)
	metrics.JobsSubmittedTotal.Inc()
	metrics.QueueDepth.Set(float64(depth))

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("type", job.JobType).
		Int("attempt", job.Attempt).
		Int("queue_depth", depth).
		Msg("Job enqueued")
	return nil
}

// QueueDepth returns the number of jobs waiting to be processed.
func (p *Processor) QueueDepth() int {
	return p.queue.len()
}

// ProcessedCount returns the number of outcomes recorded so far.
func (p *Processor) ProcessedCount() int64 {
	return p.processed.Load()
}

// Running reports whether the background loop is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.done != nil && !isClosed(p.done)
}

// Start launches the processing loop. It returns immediately. Cancelling ctx
// stops the loop and is propagated into the in-flight handler.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrProcessorStopped
	}
	if p.running {
		return nil
	}
	p.running = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info().Int("queue_depth", p.queue.len()).Msg("Starting job processor")

	go func() {
		defer close(p.done)
		err := p.run(runCtx)

		p.mu.Lock()
		p.runErr = err
		p.mu.Unlock()

		if err != nil {
			p.logger.Warn().Err(err).Msg("Job processor loop cancelled")
		}
	}()
	return nil
}

// Stop stops pulling new jobs and waits for the in-flight handler to finish.
// If ctx ends first, the in-flight handler's context is cancelled and Stop
// waits for it to return. The loop's cancellation error, if any, is returned.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	wasRunning := p.running
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	if !wasRunning {
		return nil
	}

	p.logger.Info().Msg("Stopping job processor")

	select {
	case <-p.done:
	case <-ctx.Done():
		p.logger.Warn().Msg("Job processor shutdown timed out, cancelling in-flight job")
		p.cancel()
		<-p.done
	}
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info().Int64("processed", p.processed.Load()).Msg("Job processor stopped")
	return p.runErr
}

// Drain processes queued jobs synchronously until the queue is empty. It is
// meant for callers that do not run the background loop, and refuses to run
// alongside it.
func (p *Processor) Drain(ctx context.Context) error {
	if p.Running() {
		return ErrProcessorRunning
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, depth, ok := p.queue.pop()
		if !ok {
			return nil
		}
		metrics.QueueDepth.Set(float64(depth))
		if err := p.processJob(ctx, job); err != nil {
			return err
		}
	}
}

func (p *Processor) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		default:
		}

		job, depth, ok := p.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.stopCh:
				return nil
			case <-p.queue.ready:
			}
			continue
		}
		metrics.QueueDepth.Set(float64(depth))

		if err := p.processJob(ctx, job); err != nil {
			return err
		}
	}
}

// processJob handles one dequeued job. The only error it returns is a
// cancellation, in which case no outcome is recorded.
func (p *Processor) processJob(ctx context.Context, job *interfaces.JobContract) error {
	log := p.logger.With().
		Str("job_id", job.ID).
		Str("type", job.JobType).
		Str("correlation_id", job.CorrelationID).
		Int("attempt", job.Attempt).
		Int("max_attempts", job.MaxAttempts).
		Logger()

	if p.alreadyProcessed(job) {
		metrics.JobsSkippedTotal.Inc()
		log.Debug().Str("idempotency_key", job.IdempotencyKey).Msg("Skipping duplicate job")
		return nil
	}

	if err := ctx.Err(); err != nil {
		log.Info().Msg("Cancelled before handling job")
		return err
	}

	startTime := p.now()
	handler, ok := p.registry.Get(job.JobType)
	if !ok {
		outcome := p.newOutcome(job, startTime)
		outcome.Status = interfaces.StatusFailed
		outcome.ErrorMessage = fmt.Sprintf("%s for job type %q", ErrNoHandler, job.JobType)
		log.Error().Msg("No handler registered for job type")
		p.record(ctx, job, outcome)
		return nil
	}

	log.Info().Msg("Processing job")
	result, err := p.invoke(ctx, handler, job)
	outcome := p.newOutcome(job, startTime)
	metrics.JobProcessingDuration.WithLabelValues(job.JobType).Observe(outcome.Duration.Seconds())

	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		log.Info().Err(err).Msg("Job cancelled during handling")
		return ctx.Err()
	}

	switch {
	case err != nil:
		p.fail(&outcome, job, err.Error())
		log.Error().Err(err).Str("status", string(outcome.Status)).Msg("Job processing failed")
	case result.Status == interfaces.StatusFailed || result.Status == interfaces.StatusPoisoned:
		msg := result.ErrorMessage
		if msg == "" {
			msg = "handler reported failure"
		}
		p.fail(&outcome, job, msg)
		log.Error().Str("error", msg).Str("status", string(outcome.Status)).Msg("Job processing failed")
	default:
		outcome.Status = interfaces.StatusCompleted
		log.Info().Dur("duration", outcome.Duration).Msg("Job completed")
	}

	p.record(ctx, job, outcome)
	return nil
}

func (p *Processor) newOutcome(job *interfaces.JobContract, startTime time.Time) interfaces.JobOutcome {
	now := p.now()
	return interfaces.JobOutcome{
		JobID:      job.ID,
		JobType:    job.JobType,
		Attempt:    job.Attempt,
		Duration:   now.Sub(startTime),
		RecordedAt: now,
	}
}

// fail marks outcome Failed, or Poisoned once the job has used its last attempt.
func (p *Processor) fail(outcome *interfaces.JobOutcome, job *interfaces.JobContract, msg string) {
	outcome.ErrorMessage = msg
	if job.Attempt >= job.MaxAttempts {
		outcome.Status = interfaces.StatusPoisoned
		return
	}
	outcome.Status = interfaces.StatusFailed
}

func (p *Processor) invoke(ctx context.Context, handler interfaces.JobHandler, job *interfaces.JobContract) (result interfaces.JobOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", job.ID).
				Str("type", job.JobType).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Job handler panicked")
			err = fmt.Errorf("panic in job handler %s: %v", job.JobType, r)
		}
	}()
	return handler.Process(ctx, job)
}

func (p *Processor) record(ctx context.Context, job *interfaces.JobContract, outcome interfaces.JobOutcome) {
	p.claim(job, outcome.Status == interfaces.StatusCompleted)
	p.processed.Add(1)
	metrics.JobOutcomesTotal.WithLabelValues(job.JobType, string(outcome.Status)).Inc()
	p.recorder.Record(ctx, job, outcome)
}

// alreadyProcessed reports whether job's idempotency key was claimed by a
// different job, or by this job with a completed outcome. Redeliveries of the
// claiming job are allowed until it completes.
func (p *Processor) alreadyProcessed(job *interfaces.JobContract) bool {
	if job.IdempotencyKey == "" {
		return false
	}
	p.seenMu.Lock()
	defer p.seenMu.Unlock()

	entry, ok := p.seen[job.IdempotencyKey]
	if !ok {
		return false
	}
	return entry.completed || entry.jobID != job.ID
}

func (p *Processor) claim(job *interfaces.JobContract, completed bool) {
	if job.IdempotencyKey == "" {
		return
	}
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	p.seen[job.IdempotencyKey] = seenKey{jobID: job.ID, completed: completed}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
