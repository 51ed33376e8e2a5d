package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/mtr002/jobcore/internal/resilience"
)

const serviceName = "jobcore.WorkerService"

// SubmitJobRequest asks the worker to enqueue one job
type SubmitJobRequest struct {
	JobType        string          `json:"job_type"`
	SubjectID      string          `json:"subject_id,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	MaxAttempts    int             `json:"max_attempts,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// SubmitJobResponse identifies the enqueued job
type SubmitJobResponse struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
	Attempt       int    `json:"attempt"`
	MaxAttempts   int    `json:"max_attempts"`
	QueueDepth    int    `json:"queue_depth"`
}

type GetStatsRequest struct{}

// StatsResponse is a diagnostics snapshot of the worker
type StatsResponse struct {
	QueueDepth     int                      `json:"queue_depth"`
	ProcessedCount int64                    `json:"processed_count"`
	Outcomes       map[string]int           `json:"outcomes,omitempty"`
	Circuits       []resilience.CircuitInfo `json:"circuits"`
	JobTypes       []string                 `json:"job_types,omitempty"`
}

// WorkerServer is the server API for jobcore.WorkerService
type WorkerServer interface {
	SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error)
}

// RegisterWorkerServer registers srv on s
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJob", Handler: submitJobHandler},
		{MethodName: "GetStats", Handler: getStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobcore/worker",
}

func submitJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).SubmitJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SubmitJob"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).SubmitJob(ctx, req.(*SubmitJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetStats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).GetStats(ctx, req.(*GetStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}
