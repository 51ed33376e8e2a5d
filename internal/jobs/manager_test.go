package jobs_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*interfaces.JobContract
	err  error
}

func (q *fakeQueue) EnqueueJob(job *interfaces.JobContract) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) enqueued() []*interfaces.JobContract {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*interfaces.JobContract(nil), q.jobs...)
}

func TestManager_SubmitBuildsContract(t *testing.T) {
	q := &fakeQueue{}
	m := jobs.NewManager(q, 0)

	job, err := m.Submit(jobs.Submission{
		JobType:        "email-to-document",
		SubjectID:      "user-1",
		IdempotencyKey: "email-42",
		Payload:        []byte(`{"email_id":"42"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.ID == "" || job.CorrelationID == "" {
		t.Errorf("expected generated ids, got %+v", job)
	}
	if job.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", job.Attempt)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", job.MaxAttempts)
	}
	if got := q.enqueued(); len(got) != 1 || got[0] != job {
		t.Errorf("expected the contract to be enqueued once, got %v", got)
	}
}

func TestManager_SubmitKeepsCallerValues(t *testing.T) {
	m := jobs.NewManager(&fakeQueue{}, 3)

	job, err := m.Submit(jobs.Submission{JobType: "sync", CorrelationID: "corr-1", MaxAttempts: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want corr-1", job.CorrelationID)
	}
	if job.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", job.MaxAttempts)
	}
}

func TestManager_SubmitValidation(t *testing.T) {
	m := jobs.NewManager(&fakeQueue{}, 3)

	tests := []struct {
		name string
		sub  jobs.Submission
	}{
		{"empty type", jobs.Submission{}},
		{"negative attempts", jobs.Submission{JobType: "x", MaxAttempts: -1}},
		{"bad payload", jobs.Submission{JobType: "x", Payload: []byte("{nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Submit(tt.sub); !errors.Is(err, jobs.ErrInvalidSubmission) {
				t.Errorf("err = %v, want ErrInvalidSubmission", err)
			}
		})
	}
}

func TestManager_SubmitEnqueueError(t *testing.T) {
	want := errors.New("processor stopped")
	m := jobs.NewManager(&fakeQueue{err: want}, 3)

	if _, err := m.Submit(jobs.Submission{JobType: "x"}); !errors.Is(err, want) {
		t.Fatalf("err = %v, want wrapped %v", err, want)
	}
}
