package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
)

type lookup map[string]bool

func (l lookup) Has(jobType string) bool { return l[jobType] }

func failedOutcome(job *interfaces.JobContract, status interfaces.OutcomeStatus) interfaces.JobOutcome {
	return interfaces.JobOutcome{JobID: job.ID, JobType: job.JobType, Status: status, Attempt: job.Attempt, ErrorMessage: "boom"}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestResubmitter_ReenqueuesWithNextAttempt(t *testing.T) {
	q := &fakeQueue{}
	r := jobs.NewResubmitter(q, lookup{"sync": true}, time.Millisecond)
	defer r.Close()

	job := &interfaces.JobContract{ID: "job-1", JobType: "sync", IdempotencyKey: "k", Attempt: 1, MaxAttempts: 3}
	r.Record(context.Background(), job, failedOutcome(job, interfaces.StatusFailed))

	waitFor(t, func() bool { return len(q.enqueued()) == 1 })

	next := q.enqueued()[0]
	if next.ID != "job-1" || next.IdempotencyKey != "k" {
		t.Errorf("resubmission must keep identity, got %+v", next)
	}
	if next.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", next.Attempt)
	}
	if job.Attempt != 1 {
		t.Error("original contract must not be mutated")
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
}

func TestResubmitter_IgnoresTerminalOutcomes(t *testing.T) {
	q := &fakeQueue{}
	r := jobs.NewResubmitter(q, lookup{"sync": true}, time.Millisecond)
	defer r.Close()

	last := &interfaces.JobContract{ID: "a", JobType: "sync", Attempt: 3, MaxAttempts: 3}
	r.Record(context.Background(), last, failedOutcome(last, interfaces.StatusPoisoned))

	done := &interfaces.JobContract{ID: "b", JobType: "sync", Attempt: 1, MaxAttempts: 3}
	r.Record(context.Background(), done, failedOutcome(done, interfaces.StatusCompleted))

	orphan := &interfaces.JobContract{ID: "c", JobType: "Orphan", Attempt: 1, MaxAttempts: 3}
	r.Record(context.Background(), orphan, failedOutcome(orphan, interfaces.StatusFailed))

	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(q.enqueued()); n != 0 {
		t.Errorf("enqueued %d jobs, want 0", n)
	}
}

func TestResubmitter_CloseCancelsPending(t *testing.T) {
	q := &fakeQueue{}
	r := jobs.NewResubmitter(q, nil, time.Hour)

	job := &interfaces.JobContract{ID: "job-1", JobType: "sync", Attempt: 1, MaxAttempts: 2}
	r.Record(context.Background(), job, failedOutcome(job, interfaces.StatusFailed))
	if r.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", r.Pending())
	}

	r.Close()
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after Close", r.Pending())
	}

	r.Record(context.Background(), job, failedOutcome(job, interfaces.StatusFailed))
	if r.Pending() != 0 {
		t.Error("closed resubmitter must not schedule")
	}
}
