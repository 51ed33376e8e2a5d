package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// OutcomeStatus is the recorded result class of one processing attempt
type OutcomeStatus string

const (
	StatusCompleted OutcomeStatus = "completed"
	StatusFailed    OutcomeStatus = "failed"
	StatusPoisoned  OutcomeStatus = "poisoned"
)

// JobContract describes one unit of background work
type JobContract struct {
	ID             string          `json:"id"`
	JobType        string          `json:"job_type"`
	SubjectID      string          `json:"subject_id,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// String returns a string representation of the job
func (j *JobContract) String() string {
	return fmt.Sprintf("Job{ID: %s, Type: %s, Attempt: %d/%d}",
		j.ID, j.JobType, j.Attempt, j.MaxAttempts)
}

// CanRetry returns true if another attempt is allowed after this one
func (j *JobContract) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// NextAttempt returns a copy of the contract for redelivery with the attempt
// counter incremented.
func (j *JobContract) NextAttempt() *JobContract {
	next := *j
	next.Attempt++
	return &next
}

// RetryDelay returns the exponential delay before redelivering attempt+1:
// base * 2^(attempt-1), capped at five minutes.
func (j *JobContract) RetryDelay(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	attempt := j.Attempt
	if attempt < 1 {
		attempt = 1
	}
	maxDelay := 5 * time.Minute
	if attempt > 20 {
		return maxDelay
	}

	delay := time.Duration(1<<(attempt-1)) * base
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// JobOutcome is the immutable result of processing one attempt
type JobOutcome struct {
	JobID        string        `json:"job_id"`
	JobType      string        `json:"job_type"`
	Status       OutcomeStatus `json:"status"`
	Duration     time.Duration `json:"duration"`
	Attempt      int           `json:"attempt"`
	ErrorMessage string        `json:"error,omitempty"`
	RecordedAt   time.Time     `json:"recorded_at"`
}

// JobHandler performs the work for a single job type. Handlers are the
// boundary to external stores; they usually call out through the resilience
// package.
type JobHandler interface {
	JobType() string
	Process(ctx context.Context, job *JobContract) (JobOutcome, error)
}

// OutcomeRecorder receives every outcome recorded by the processor
type OutcomeRecorder interface {
	Record(ctx context.Context, job *JobContract, outcome JobOutcome)
}

// RecorderFunc adapts a function to OutcomeRecorder
type RecorderFunc func(ctx context.Context, job *JobContract, outcome JobOutcome)

// Record implements OutcomeRecorder
func (f RecorderFunc) Record(ctx context.Context, job *JobContract, outcome JobOutcome) {
	f(ctx, job, outcome)
}
