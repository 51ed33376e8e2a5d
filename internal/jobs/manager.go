package jobs

import (
	"fmt"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/logger"
)

// Enqueuer accepts contracts for processing
type Enqueuer interface {
	EnqueueJob(job *interfaces.JobContract) error
}

// EnqueuerFunc adapts a function to Enqueuer
type EnqueuerFunc func(job *interfaces.JobContract) error

func (f EnqueuerFunc) EnqueueJob(job *interfaces.JobContract) error {
	return f(job)
}

// Manager turns submissions into contracts and hands them to the processor
type Manager struct {
	queue              Enqueuer
	defaultMaxAttempts int
}

// NewManager creates a new job manager
func NewManager(queue Enqueuer, defaultMaxAttempts int) *Manager {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3 // Default to 3 attempts
	}

	return &Manager{
		queue:              queue,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// DefaultMaxAttempts returns the attempts given to submissions that set none
func (m *Manager) DefaultMaxAttempts() int {
	return m.defaultMaxAttempts
}

// Submit validates s, builds a contract and enqueues it
func (m *Manager) Submit(s Submission) (*interfaces.JobContract, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	job := NewContract(s, m.defaultMaxAttempts)
	if err := m.queue.EnqueueJob(job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log := logger.WithJobID(job.ID)
	log.Info().
		Str("type", job.JobType).
		Str("correlation_id", job.CorrelationID).
		Int("max_attempts", job.MaxAttempts).
		Msg("Job submitted successfully")
	return job, nil
}
