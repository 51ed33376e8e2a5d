package jobs

import (
	"context"
	"sync"

	"github.com/mtr002/jobcore/internal/interfaces"
)

// OutcomeLog keeps the most recent outcomes in memory for diagnostics
type OutcomeLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []interfaces.JobOutcome
	next     int
	full     bool
	counts   map[interfaces.OutcomeStatus]int
}

// NewOutcomeLog creates a log holding up to capacity outcomes
func NewOutcomeLog(capacity int) *OutcomeLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &OutcomeLog{
		capacity: capacity,
		entries:  make([]interfaces.JobOutcome, capacity),
		counts:   make(map[interfaces.OutcomeStatus]int),
	}
}

// Record implements interfaces.OutcomeRecorder
func (l *OutcomeLog) Record(_ context.Context, _ *interfaces.JobContract, outcome interfaces.JobOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = outcome
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
	l.counts[outcome.Status]++
}

// Recent returns up to n outcomes, newest first. n <= 0 returns all retained.
func (l *OutcomeLog) Recent(n int) []interfaces.JobOutcome {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = l.capacity
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]interfaces.JobOutcome, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + l.capacity) % l.capacity
		out = append(out, l.entries[idx])
	}
	return out
}

// Latest returns the newest retained outcome for jobID
func (l *OutcomeLog) Latest(jobID string) (interfaces.JobOutcome, bool) {
	for _, o := range l.Recent(0) {
		if o.JobID == jobID {
			return o, true
		}
	}
	return interfaces.JobOutcome{}, false
}

// Counts returns cumulative outcome counts by status
func (l *OutcomeLog) Counts() map[interfaces.OutcomeStatus]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[interfaces.OutcomeStatus]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

type multiRecorder []interfaces.OutcomeRecorder

func (m multiRecorder) Record(ctx context.Context, job *interfaces.JobContract, outcome interfaces.JobOutcome) {
	for _, r := range m {
		r.Record(ctx, job, outcome)
	}
}

// Recorders fans an outcome out to every non-nil recorder in order
func Recorders(recorders ...interfaces.OutcomeRecorder) interfaces.OutcomeRecorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
