package jobs_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
)

func TestOutcomeLog_RecentNewestFirstAndBounded(t *testing.T) {
	l := jobs.NewOutcomeLog(3)
	for i := 1; i <= 5; i++ {
		l.Record(context.Background(), nil, interfaces.JobOutcome{
			JobID:  fmt.Sprintf("job-%d", i),
			Status: interfaces.StatusCompleted,
		})
	}

	recent := l.Recent(0)
	want := []string{"job-5", "job-4", "job-3"}
	if len(recent) != len(want) {
		t.Fatalf("len = %d, want %d", len(recent), len(want))
	}
	for i := range want {
		if recent[i].JobID != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, recent[i].JobID, want[i])
		}
	}

	if got := l.Recent(1); len(got) != 1 || got[0].JobID != "job-5" {
		t.Errorf("Recent(1) = %v", got)
	}
	if got := l.Counts()[interfaces.StatusCompleted]; got != 5 {
		t.Errorf("completed count = %d, want 5", got)
	}
}

func TestOutcomeLog_Latest(t *testing.T) {
	l := jobs.NewOutcomeLog(10)
	ctx := context.Background()
	l.Record(ctx, nil, interfaces.JobOutcome{JobID: "job-1", Status: interfaces.StatusFailed, Attempt: 1})
	l.Record(ctx, nil, interfaces.JobOutcome{JobID: "job-1", Status: interfaces.StatusCompleted, Attempt: 2})

	got, ok := l.Latest("job-1")
	if !ok || got.Attempt != 2 {
		t.Errorf("Latest = %+v, %v", got, ok)
	}
	if _, ok := l.Latest("missing"); ok {
		t.Error("expected no outcome for unknown job")
	}
}

func TestRecorders_FanOutSkipsNil(t *testing.T) {
	var calls []string
	a := interfaces.RecorderFunc(func(context.Context, *interfaces.JobContract, interfaces.JobOutcome) { calls = append(calls, "a") })
	b := interfaces.RecorderFunc(func(context.Context, *interfaces.JobContract, interfaces.JobOutcome) { calls = append(calls, "b") })

	jobs.Recorders(a, nil, b).Record(context.Background(), nil, interfaces.JobOutcome{})
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}
}
