package nats

import (
	"encoding/json"
	"time"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
)

const (
	JobSubmitSubject  = "jobs.submit"
	JobOutcomeSubject = "jobs.outcome"
)

type JobSubmissionMessage struct {
	JobType        string          `json:"job_type"`
	SubjectID      string          `json:"subject_id,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	MaxAttempts    int             `json:"max_attempts,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Submission converts the message into a job submission
func (m *JobSubmissionMessage) Submission() jobs.Submission {
	return jobs.Submission{
		JobType:        m.JobType,
		SubjectID:      m.SubjectID,
		CorrelationID:  m.CorrelationID,
		IdempotencyKey: m.IdempotencyKey,
		MaxAttempts:    m.MaxAttempts,
		Payload:        m.Payload,
	}
}

// SubmissionAck is the reply sent when a submission carries a reply subject
type SubmissionAck struct {
	JobID         string `json:"job_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type JobOutcomeMessage struct {
	JobID         string `json:"job_id"`
	JobType       string `json:"job_type"`
	Status        string `json:"status"`
	Attempt       int    `json:"attempt"`
	MaxAttempts   int    `json:"max_attempts"`
	CorrelationID string `json:"correlation_id,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	Error         string `json:"error,omitempty"`
	RecordedAt    string `json:"recorded_at"`
}

func NewOutcomeMessage(job *interfaces.JobContract, outcome interfaces.JobOutcome) *JobOutcomeMessage {
	return &JobOutcomeMessage{
		JobID:         outcome.JobID,
		JobType:       outcome.JobType,
		Status:        string(outcome.Status),
		Attempt:       outcome.Attempt,
		MaxAttempts:   job.MaxAttempts,
		CorrelationID: job.CorrelationID,
		DurationMs:    outcome.Duration.Milliseconds(),
		Error:         outcome.ErrorMessage,
		RecordedAt:    outcome.RecordedAt.Format(time.RFC3339Nano),
	}
}
