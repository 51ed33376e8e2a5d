package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/resilience"
)

// QueueStats reports the processor's counters
type QueueStats interface {
	QueueDepth() int
	ProcessedCount() int64
}

// Server implements WorkerServer on top of the job manager
type Server struct {
	manager  *jobs.Manager
	stats    QueueStats
	circuits *resilience.CircuitRegistry
	outcomes *jobs.OutcomeLog
	registry *jobs.Registry
}

// NewServer creates a worker gRPC service. outcomes and registry may be nil.
func NewServer(manager *jobs.Manager, stats QueueStats, circuits *resilience.CircuitRegistry, outcomes *jobs.OutcomeLog, registry *jobs.Registry) *Server {
	return &Server{
		manager:  manager,
		stats:    stats,
		circuits: circuits,
		outcomes: outcomes,
		registry: registry,
	}
}

// NewGRPCServer builds a grpc.Server with request logging and registers s on it
func NewGRPCServer(s WorkerServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterWorkerServer(srv, s)
	return srv
}

func (s *Server) SubmitJob(_ context.Context, req *SubmitJobRequest) (*SubmitJobResponse, error) {
	job, err := s.manager.Submit(jobs.Submission{
		JobType:        req.JobType,
		SubjectID:      req.SubjectID,
		CorrelationID:  req.CorrelationID,
		IdempotencyKey: req.IdempotencyKey,
		MaxAttempts:    req.MaxAttempts,
		Payload:        req.Payload,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidSubmission) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	return &SubmitJobResponse{
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
		QueueDepth:    s.stats.QueueDepth(),
	}, nil
}

func (s *Server) GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error) {
	resp := &StatsResponse{
		QueueDepth:     s.stats.QueueDepth(),
		ProcessedCount: s.stats.ProcessedCount(),
		Circuits:       s.circuits.GetAllCircuits(),
	}
	if s.outcomes != nil {
		resp.Outcomes = make(map[string]int)
		for st, n := range s.outcomes.Counts() {
			resp.Outcomes[string(st)] = n
		}
	}
	if s.registry != nil {
		resp.JobTypes = s.registry.Types()
	}
	return resp, nil
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	event := logger.Logger.Debug()
	if err != nil {
		event = logger.Logger.Warn().Err(err)
	}
	event.
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC request")
	return resp, err
}
