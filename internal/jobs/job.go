package jobs

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/mtr002/jobcore/internal/interfaces"
)

// ErrInvalidSubmission wraps every submission validation failure
var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is what a caller provides to create a job
type Submission struct {
	JobType        string          `json:"job_type"`
	SubjectID      string          `json:"subject_id,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	MaxAttempts    int             `json:"max_attempts,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the submission is structurally usable
func (s Submission) Validate() error {
	if s.JobType == "" {
		return errors.New("job type cannot be empty")
	}
	if s.MaxAttempts < 0 {
		return errors.New("max attempts cannot be negative")
	}
	if len(s.Payload) > 0 && !json.Valid(s.Payload) {
		return errors.New("payload must be valid JSON")
	}
	return nil
}

// NewContract builds the first-attempt contract for s
func NewContract(s Submission, defaultMaxAttempts int) *interfaces.JobContract {
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	correlationID := s.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	return &interfaces.JobContract{
		ID:             uuid.New().String(),
		JobType:        s.JobType,
		SubjectID:      s.SubjectID,
		CorrelationID:  correlationID,
		IdempotencyKey: s.IdempotencyKey,
		Attempt:        1,
		MaxAttempts:    maxAttempts,
		Payload:        s.Payload,
	}
}
