package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mtr002/jobcore/internal/interfaces"
)

// Registry maps job types to handlers. It is built once at startup and is
// read-only afterwards, so lookups need no locking.
type Registry struct {
	handlers map[string]interfaces.JobHandler
}

// NewRegistry builds a registry from handlers. Empty or duplicate job types
// are rejected.
func NewRegistry(handlers ...interfaces.JobHandler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]interfaces.JobHandler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("nil job handler")
		}
		jobType := h.JobType()
		if jobType == "" {
			return nil, errors.New("job handler has empty job type")
		}
		if _, exists := r.handlers[jobType]; exists {
			return nil, fmt.Errorf("duplicate handler for job type %q", jobType)
		}
		r.handlers[jobType] = h
	}
	return r, nil
}

// Get returns the handler for jobType.
func (r *Registry) Get(jobType string) (interfaces.JobHandler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

// Has reports whether a handler is registered for jobType.
func (r *Registry) Has(jobType string) bool {
	_, ok := r.handlers[jobType]
	return ok
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type funcHandler struct {
	jobType string
	fn      func(ctx context.Context, job *interfaces.JobContract) error
}

func (h *funcHandler) JobType() string { return h.jobType }

func (h *funcHandler) Process(ctx context.Context, job *interfaces.JobContract) (interfaces.JobOutcome, error) {
	if err := h.fn(ctx, job); err != nil {
		return interfaces.JobOutcome{}, err
	}
	return interfaces.JobOutcome{Status: interfaces.StatusCompleted}, nil
}

// HandlerFunc adapts a plain function to a JobHandler for jobType.
func HandlerFunc(jobType string, fn func(ctx context.Context, job *interfaces.JobContract) error) interfaces.JobHandler {
	return &funcHandler{jobType: jobType, fn: fn}
}

// TypedHandler wraps fn in a handler that JSON-decodes the job payload into T
// before calling it. An empty payload leaves T at its zero value.
func TypedHandler[T any](jobType string, fn func(ctx context.Context, job *interfaces.JobContract, payload T) error) interfaces.JobHandler {
	return HandlerFunc(jobType, func(ctx context.Context, job *interfaces.JobContract) error {
		var payload T
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("unmarshal payload for job type %q: %w", jobType, err)
			}
		}
		return fn(ctx, job, payload)
	})
}
