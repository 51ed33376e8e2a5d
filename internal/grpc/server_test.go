package grpc_test

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	jobgrpc "github.com/mtr002/jobcore/internal/grpc"
	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/resilience"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []*interfaces.JobContract
}

func (q *memQueue) EnqueueJob(job *interfaces.JobContract) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) QueueDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *memQueue) ProcessedCount() int64 { return 7 }

func (q *memQueue) snapshot() []*interfaces.JobContract {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*interfaces.JobContract(nil), q.jobs...)
}

func startServer(t *testing.T) (*jobgrpc.Client, *memQueue, *resilience.CircuitRegistry) {
	t.Helper()

	queue := &memQueue{}
	circuits := resilience.NewCircuitRegistry()
	circuits.RegisterCircuit("Graph")
	outcomes := jobs.NewOutcomeLog(8)
	outcomes.Record(context.Background(), nil, interfaces.JobOutcome{JobID: "old", Status: interfaces.StatusCompleted})

	svc := jobgrpc.NewServer(jobs.NewManager(queue, 3), queue, circuits, outcomes, nil)
	srv := jobgrpc.NewGRPCServer(svc)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := jobgrpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, queue, circuits
}

func TestSubmitJob(t *testing.T) {
	client, queue, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.SubmitJob(ctx, &jobgrpc.SubmitJobRequest{
		JobType:        "echo",
		CorrelationID:  "corr-1",
		IdempotencyKey: "idem-1",
		Payload:        json.RawMessage(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	if resp.JobID == "" || resp.CorrelationID != "corr-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Attempt != 1 || resp.MaxAttempts != 3 || resp.QueueDepth != 1 {
		t.Errorf("unexpected counters: %+v", resp)
	}

	enqueued := queue.snapshot()
	if len(enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(enqueued))
	}
	job := enqueued[0]
	if job.IdempotencyKey != "idem-1" || string(job.Payload) != `{"text":"hi"}` {
		t.Errorf("contract not carried through: %+v", job)
	}
}

func TestSubmitJob_InvalidArgument(t *testing.T) {
	client, _, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.SubmitJob(ctx, &jobgrpc.SubmitJobRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument (err %v)", status.Code(err), err)
	}
}

func TestGetStats(t *testing.T) {
	client, _, circuits := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := circuits.RecordStateChange("graph", resilience.CircuitOpen, time.Minute); err != nil {
		t.Fatalf("RecordStateChange: %v", err)
	}

	stats, err := client.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.ProcessedCount != 7 || stats.QueueDepth != 0 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.Outcomes["completed"] != 1 {
		t.Errorf("Outcomes = %v", stats.Outcomes)
	}
	if len(stats.Circuits) != 1 || stats.Circuits[0].State != resilience.CircuitOpen || stats.Circuits[0].IsAvailable {
		t.Errorf("Circuits = %+v", stats.Circuits)
	}
}
