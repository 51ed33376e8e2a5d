package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	jobgrpc "github.com/mtr002/jobcore/internal/grpc"
	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/metrics"
	"github.com/mtr002/jobcore/internal/nats"
	"github.com/mtr002/jobcore/internal/websocket"
)

// Forwarder hands a submission to a worker
type Forwarder interface {
	SubmitJob(ctx context.Context, req *jobgrpc.SubmitJobRequest) (*jobgrpc.SubmitJobResponse, error)
}

// StatsSource fetches a worker's diagnostics snapshot
type StatsSource interface {
	GetStats(ctx context.Context) (*jobgrpc.StatsResponse, error)
}

// GatewayDeps are the components served by the gateway. Stats and Hub may be nil.
type GatewayDeps struct {
	Forwarder Forwarder
	Stats     StatsSource
	Hub       *websocket.Hub
	Health    *Health
}

// AddGatewayRoutes registers the gateway endpoints on mux
func AddGatewayRoutes(mux *http.ServeMux, deps GatewayDeps) {
	mux.HandleFunc("POST /jobs", correlationMiddleware(handleForwardJob(deps.Forwarder)))
	mux.HandleFunc("GET /diagnostics", correlationMiddleware(handleWorkerStats(deps.Stats)))
	addCommonRoutes(mux, deps.Hub, deps.Health)
}

func handleForwardJob(fwd Forwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithCorrelationID(getCorrelationID(r.Context()))

		s, err := decodeSubmission(r)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid JSON request")
			writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if s.JobType == "" {
			writeError(w, r, http.StatusBadRequest, "job_type is required")
			return
		}

		resp, err := fwd.SubmitJob(r.Context(), &jobgrpc.SubmitJobRequest{
			JobType:        s.JobType,
			SubjectID:      s.SubjectID,
			CorrelationID:  s.CorrelationID,
			IdempotencyKey: s.IdempotencyKey,
			MaxAttempts:    s.MaxAttempts,
			Payload:        s.Payload,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to forward job")
			code := http.StatusBadGateway
			if status.Code(err) == codes.InvalidArgument {
				code = http.StatusBadRequest
			}
			writeError(w, r, code, "failed to submit job: "+err.Error())
			return
		}
		metrics.JobsForwardedTotal.Inc()

		log.Info().Str("job_id", resp.JobID).Msg("Job forwarded to worker")
		writeJSON(w, http.StatusAccepted, SubmitResponse{
			JobID:         resp.JobID,
			CorrelationID: resp.CorrelationID,
			Attempt:       resp.Attempt,
			MaxAttempts:   resp.MaxAttempts,
			QueueDepth:    resp.QueueDepth,
		})
	}
}

func handleWorkerStats(stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stats == nil {
			writeError(w, r, http.StatusNotFound, "worker diagnostics unavailable")
			return
		}
		resp, err := stats.GetStats(r.Context())
		if err != nil {
			writeError(w, r, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type natsForwarder struct {
	client *nats.Client
}

// NATSForwarder submits through the jobs.submit subject and waits for the ack
func NATSForwarder(client *nats.Client) Forwarder {
	return &natsForwarder{client: client}
}

func (f *natsForwarder) SubmitJob(ctx context.Context, req *jobgrpc.SubmitJobRequest) (*jobgrpc.SubmitJobResponse, error) {
	ack, err := f.client.RequestJobSubmission(ctx, &nats.JobSubmissionMessage{
		JobType:        req.JobType,
		SubjectID:      req.SubjectID,
		CorrelationID:  req.CorrelationID,
		IdempotencyKey: req.IdempotencyKey,
		MaxAttempts:    req.MaxAttempts,
		Payload:        req.Payload,
	})
	if err != nil {
		return nil, err
	}
	if ack.JobID == "" {
		return nil, errors.New("worker did not return a job id")
	}
	return &jobgrpc.SubmitJobResponse{
		JobID:         ack.JobID,
		CorrelationID: ack.CorrelationID,
		Attempt:       1,
		MaxAttempts:   req.MaxAttempts,
	}, nil
}
