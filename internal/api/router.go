package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/resilience"
	"github.com/mtr002/jobcore/internal/websocket"
)

const maxBodyBytes = 1 << 20

// QueueStats reports the processor's counters
type QueueStats interface {
	QueueDepth() int
	ProcessedCount() int64
}

// WorkerDeps are the components served by the worker's HTTP API. Outcomes
// and Hub may be nil.
type WorkerDeps struct {
	Manager  *jobs.Manager
	Stats    QueueStats
	Circuits *resilience.CircuitRegistry
	Outcomes *jobs.OutcomeLog
	Hub      *websocket.Hub
	Health   *Health
}

// SubmitResponse is returned when a job is accepted
type SubmitResponse struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
	Attempt       int    `json:"attempt"`
	MaxAttempts   int    `json:"max_attempts"`
	QueueDepth    int    `json:"queue_depth"`
}

// QueueDiagnostics is the body of GET /diagnostics/queue
type QueueDiagnostics struct {
	QueueDepth     int            `json:"queue_depth"`
	ProcessedCount int64          `json:"processed_count"`
	Outcomes       map[string]int `json:"outcomes,omitempty"`
}

// AddWorkerRoutes registers the worker endpoints on mux
func AddWorkerRoutes(mux *http.ServeMux, deps WorkerDeps) {
	mux.HandleFunc("POST /jobs", correlationMiddleware(handleSubmitJob(deps)))
	mux.HandleFunc("GET /jobs/outcomes", correlationMiddleware(handleRecentOutcomes(deps.Outcomes)))
	mux.HandleFunc("GET /jobs/{id}/outcome", correlationMiddleware(handleJobOutcome(deps.Outcomes)))
	mux.HandleFunc("GET /diagnostics/queue", correlationMiddleware(handleQueueDiagnostics(deps)))
	mux.HandleFunc("GET /diagnostics/circuits", correlationMiddleware(handleCircuits(deps.Circuits)))
	mux.HandleFunc("GET /diagnostics/circuits/{service}", correlationMiddleware(handleCircuit(deps.Circuits)))
	addCommonRoutes(mux, deps.Hub, deps.Health)
}

func addCommonRoutes(mux *http.ServeMux, hub *websocket.Hub, health *Health) {
	if hub != nil {
		mux.Handle("/ws", websocket.Handler(hub))
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/health/ready", health.HandleReadiness)
	mux.HandleFunc("/health/live", health.HandleLiveness)
}

func decodeSubmission(r *http.Request) (jobs.Submission, error) {
	var s jobs.Submission
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return s, err
	}
	if s.CorrelationID == "" {
		s.CorrelationID = getCorrelationID(r.Context())
	}
	return s, nil
}

func handleSubmitJob(deps WorkerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithCorrelationID(getCorrelationID(r.Context()))

		s, err := decodeSubmission(r)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid JSON request")
			writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}

		job, err := deps.Manager.Submit(s)
		if err != nil {
			if errors.Is(err, jobs.ErrInvalidSubmission) {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to submit job")
			writeError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, SubmitResponse{
			JobID:         job.ID,
			CorrelationID: job.CorrelationID,
			Attempt:       job.Attempt,
			MaxAttempts:   job.MaxAttempts,
			QueueDepth:    deps.Stats.QueueDepth(),
		})
	}
}

func handleRecentOutcomes(outcomes *jobs.OutcomeLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if outcomes == nil {
			writeError(w, r, http.StatusNotFound, "outcome history disabled")
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		recent := outcomes.Recent(limit)
		writeJSON(w, http.StatusOK, map[string]any{
			"outcomes": recent,
			"count":    len(recent),
		})
	}
}

func handleJobOutcome(outcomes *jobs.OutcomeLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if outcomes == nil {
			writeError(w, r, http.StatusNotFound, "outcome history disabled")
			return
		}
		outcome, ok := outcomes.Latest(r.PathValue("id"))
		if !ok {
			writeError(w, r, http.StatusNotFound, "no outcome recorded for job")
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleQueueDiagnostics(deps WorkerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := QueueDiagnostics{
			QueueDepth:     deps.Stats.QueueDepth(),
			ProcessedCount: deps.Stats.ProcessedCount(),
		}
		if deps.Outcomes != nil {
			resp.Outcomes = make(map[string]int)
			for st, n := range deps.Outcomes.Counts() {
				resp.Outcomes[string(st)] = n
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCircuits(circuits *resilience.CircuitRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"circuits": circuits.GetAllCircuits(),
		})
	}
}

func handleCircuit(circuits *resilience.CircuitRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, circuits.GetCircuitInfo(r.PathValue("service")))
	}
}

// OpenCircuits lists the services whose circuits are currently open
func OpenCircuits(circuits *resilience.CircuitRegistry) func() []string {
	return func() []string {
		var open []string
		for _, c := range circuits.GetAllCircuits() {
			if c.State == resilience.CircuitOpen {
				open = append(open, c.ServiceName)
			}
		}
		return open
	}
}
