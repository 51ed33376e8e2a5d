package api

import (
	"context"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	// OpenCircuits lists downstream services currently failing fast. It is
	// informational and does not affect readiness.
	OpenCircuits []string `json:"open_circuits,omitempty"`
}

// Check is a named readiness probe
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Health serves the liveness and readiness endpoints for one service
type Health struct {
	service      string
	checks       []Check
	openCircuits func() []string
}

func NewHealth(service string, checks ...Check) *Health {
	return &Health{service: service, checks: checks}
}

// WithOpenCircuits reports fn's services in readiness responses
func (h *Health) WithOpenCircuits(fn func() []string) *Health {
	h.openCircuits = fn
	return h
}

func (h *Health) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.alive(w, r, "ok")
}

func (h *Health) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	h.alive(w, r, "alive")
}

func (h *Health) alive(w http.ResponseWriter, r *http.Request, status string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Service:   h.service,
	})
}

func (h *Health) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Service:   h.service,
		Checks:    make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.Fn(ctx); err != nil {
			response.Checks[c.Name] = err.Error()
			response.Status = "not ready"
			code = http.StatusServiceUnavailable
			continue
		}
		response.Checks[c.Name] = "ok"
	}
	if h.openCircuits != nil {
		response.OpenCircuits = h.openCircuits()
	}

	writeJSON(w, code, response)
}
