package worker

import (
	"sync"

	"github.com/mtr002/jobcore/internal/interfaces"
)

// jobQueue is an unbounded FIFO safe for many producers. ready carries at
// most one pending wake-up for the single consumer.
type jobQueue struct {
	mu    sync.Mutex
	items []*interfaces.JobContract
	head  int
	ready chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{ready: make(chan struct{}, 1)}
}

func (q *jobQueue) push(job *interfaces.JobContract) int {
	q.mu.Lock()
	q.items = append(q.items, job)
	n := len(q.items) - q.head
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return n
}

func (q *jobQueue) pop() (*interfaces.JobContract, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return nil, 0, false
	}
	job := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head > 64 && q.head*2 >= len(q.items) {
		q.items = append([]*interfaces.JobContract(nil), q.items[q.head:]...)
		q.head = 0
	}
	return job, len(q.items) - q.head, true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
