package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
)

type captureQueue struct {
	jobs []*interfaces.JobContract
}

func (q *captureQueue) EnqueueJob(job *interfaces.JobContract) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func TestHandleSubmission(t *testing.T) {
	queue := &captureQueue{}
	s := NewServer(nil, jobs.NewManager(queue, 4))

	data, _ := json.Marshal(JobSubmissionMessage{
		JobType:        "webhook",
		CorrelationID:  "corr-9",
		IdempotencyKey: "idem-9",
		Payload:        json.RawMessage(`{"url":"http://example.com"}`),
	})

	ack := s.handleSubmission(data)
	if ack.Error != "" || ack.JobID == "" || ack.CorrelationID != "corr-9" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.ID != ack.JobID || job.MaxAttempts != 4 || job.IdempotencyKey != "idem-9" {
		t.Errorf("unexpected contract: %+v", job)
	}
}

func TestHandleSubmission_Rejected(t *testing.T) {
	queue := &captureQueue{}
	s := NewServer(nil, jobs.NewManager(queue, 3))

	if ack := s.handleSubmission([]byte("{not json")); ack.Error == "" {
		t.Error("expected malformed submission error")
	}

	data, _ := json.Marshal(JobSubmissionMessage{CorrelationID: "corr-1"})
	ack := s.handleSubmission(data)
	if ack.Error == "" || ack.CorrelationID != "corr-1" {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("nothing should be enqueued, got %d", len(queue.jobs))
	}
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject, p.data = subject, data
	return p.err
}

func TestOutcomePublisher(t *testing.T) {
	pub := &fakePublisher{}
	job := &interfaces.JobContract{ID: "job-1", JobType: "echo", CorrelationID: "corr-1", Attempt: 3, MaxAttempts: 3}
	outcome := interfaces.JobOutcome{
		JobID:        "job-1",
		JobType:      "echo",
		Status:       interfaces.StatusPoisoned,
		Attempt:      3,
		Duration:     1500 * time.Millisecond,
		ErrorMessage: "boom",
		RecordedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	NewOutcomePublisher(pub).Record(context.Background(), job, outcome)

	if pub.subject != JobOutcomeSubject {
		t.Errorf("subject = %q", pub.subject)
	}
	var msg JobOutcomeMessage
	if err := json.Unmarshal(pub.data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Status != "poisoned" || msg.DurationMs != 1500 || msg.CorrelationID != "corr-1" || msg.Error != "boom" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.RecordedAt != "2024-01-02T03:04:05Z" {
		t.Errorf("RecordedAt = %q", msg.RecordedAt)
	}
}

func TestOutcomePublisher_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	NewOutcomePublisher(pub).Record(context.Background(), &interfaces.JobContract{}, interfaces.JobOutcome{JobID: "job-1"})
	if pub.subject != JobOutcomeSubject {
		t.Error("publish should still be attempted")
	}
}
