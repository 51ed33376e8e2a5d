package resilience

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/metrics"
)

// CircuitState is the health state of a downstream service
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half_open"
	CircuitOpen     CircuitState = "open"
	CircuitUnknown  CircuitState = "unknown"
)

func (s CircuitState) gaugeValue() float64 {
	switch s {
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return 0
	}
}

// CircuitInfo is a point-in-time copy of a circuit record
type CircuitInfo struct {
	ServiceName         string       `json:"service_name"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenUntil           *time.Time   `json:"open_until,omitempty"`
	IsAvailable         bool         `json:"is_available"`
	LastStateChange     time.Time    `json:"last_state_change,omitempty"`
}

type circuitRecord struct {
	name                string
	state               CircuitState
	consecutiveFailures int
	openUntil           *time.Time
	lastStateChange     time.Time
}

func (r *circuitRecord) info() CircuitInfo {
	info := CircuitInfo{
		ServiceName:         r.name,
		State:               r.state,
		ConsecutiveFailures: r.consecutiveFailures,
		IsAvailable:         r.state != CircuitOpen,
		LastStateChange:     r.lastStateChange,
	}
	if r.openUntil != nil {
		until := *r.openUntil
		info.OpenUntil = &until
	}
	return info
}

// CircuitRegistry stores per-service circuit state, keyed case-insensitively.
// It records state; it does not decide transitions based on failure counts
// (Guard does). All methods are safe for concurrent use.
//
// Reads are not always pure: an Open record whose openUntil has passed is
// moved to HalfOpen by whichever read sees it first (IsServiceAvailable,
// GetCircuitInfo or GetAllCircuits). No background timer is involved.
type CircuitRegistry struct {
	mu       sync.Mutex
	circuits map[string]*circuitRecord
	now      func() time.Time
	onChange func(CircuitInfo)
	logger   zerolog.Logger
}

// CircuitOption configures a CircuitRegistry
type CircuitOption func(*CircuitRegistry)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) CircuitOption {
	return func(r *CircuitRegistry) { r.now = now }
}

// WithStateListener registers a callback invoked after every state change.
func WithStateListener(fn func(CircuitInfo)) CircuitOption {
	return func(r *CircuitRegistry) { r.onChange = fn }
}

// WithCircuitLogger sets the registry logger.
func WithCircuitLogger(l zerolog.Logger) CircuitOption {
	return func(r *CircuitRegistry) { r.logger = l }
}

// NewCircuitRegistry creates an empty registry
func NewCircuitRegistry(opts ...CircuitOption) *CircuitRegistry {
	r := &CircuitRegistry{
		circuits: make(map[string]*circuitRecord),
		now:      time.Now,
		logger:   logger.WithComponent("circuit-registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RegisterCircuit creates a Closed record for name if none exists.
func (r *CircuitRegistry) RegisterCircuit(name string) {
	r.mu.Lock()
	_, created := r.getOrCreateLocked(name)
	r.mu.Unlock()

	if created {
		metrics.CircuitState.WithLabelValues(normalize(name)).Set(CircuitClosed.gaugeValue())
	}
}

func (r *CircuitRegistry) getOrCreateLocked(name string) (*circuitRecord, bool) {
	key := normalize(name)
	if rec, ok := r.circuits[key]; ok {
		return rec, false
	}
	rec := &circuitRecord{
		name:            strings.TrimSpace(name),
		state:           CircuitClosed,
		lastStateChange: r.now(),
	}
	r.circuits[key] = rec
	return rec, true
}

// expireLocked moves an Open record past its openUntil to HalfOpen.
func (r *CircuitRegistry) expireLocked(rec *circuitRecord) bool {
	if rec.state != CircuitOpen || rec.openUntil == nil {
		return false
	}
	now := r.now()
	if now.Before(*rec.openUntil) {
		return false
	}
	rec.state = CircuitHalfOpen
	rec.openUntil = nil
	rec.lastStateChange = now
	return true
}

// GetCircuitInfo returns the current record for name. Unknown names yield
// State Unknown with IsAvailable true.
func (r *CircuitRegistry) GetCircuitInfo(name string) CircuitInfo {
	r.mu.Lock()
	rec, ok := r.circuits[normalize(name)]
	if !ok {
		r.mu.Unlock()
		return CircuitInfo{ServiceName: name, State: CircuitUnknown, IsAvailable: true}
	}
	expired := r.expireLocked(rec)
	info := rec.info()
	r.mu.Unlock()

	if expired {
		r.notify(info)
	}
	return info
}

// IsServiceAvailable reports whether calls to name may proceed. Closed,
// HalfOpen and unregistered services are available. An Open circuit whose
// break has elapsed is switched to HalfOpen as a side effect of this call.
func (r *CircuitRegistry) IsServiceAvailable(name string) bool {
	return r.GetCircuitInfo(name).IsAvailable
}

// RecordStateChange sets the state of name explicitly, registering it first
// if needed. Opening a circuit requires a positive breakDuration.
func (r *CircuitRegistry) RecordStateChange(name string, state CircuitState, breakDuration time.Duration) error {
	switch state {
	case CircuitOpen:
		if breakDuration <= 0 {
			return fmt.Errorf("opening circuit %q requires a positive break duration", name)
		}
	case CircuitClosed, CircuitHalfOpen:
	default:
		return fmt.Errorf("invalid circuit state %q for %q", state, name)
	}

	r.mu.Lock()
	rec, _ := r.getOrCreateLocked(name)
	now := r.now()
	from := rec.state
	rec.state = state
	rec.lastStateChange = now
	switch state {
	case CircuitOpen:
		until := now.Add(breakDuration)
		rec.openUntil = &until
	case CircuitClosed:
		rec.consecutiveFailures = 0
		rec.openUntil = nil
	case CircuitHalfOpen:
		rec.openUntil = nil
	}
	info := rec.info()
	r.mu.Unlock()

	r.logger.Info().
		Str("service", info.ServiceName).
		Str("from", string(from)).
		Str("to", string(state)).
		Dur("break_duration", breakDuration).
		Msg("Circuit state changed")
	r.notify(info)
	return nil
}

// RecordFailure increments the consecutive-failure counter of name and
// returns the updated record. The state is left unchanged.
func (r *CircuitRegistry) RecordFailure(name string) CircuitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, _ := r.getOrCreateLocked(name)
	rec.consecutiveFailures++
	return rec.info()
}

// RecordSuccess resets the consecutive-failure counter of name and returns
// the updated record. The state is left unchanged.
func (r *CircuitRegistry) RecordSuccess(name string) CircuitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, _ := r.getOrCreateLocked(name)
	rec.consecutiveFailures = 0
	return rec.info()
}

// GetAllCircuits returns a snapshot of every registered circuit sorted by
// service name.
func (r *CircuitRegistry) GetAllCircuits() []CircuitInfo {
	r.mu.Lock()
	out := make([]CircuitInfo, 0, len(r.circuits))
	var changed []CircuitInfo
	for _, rec := range r.circuits {
		expired := r.expireLocked(rec)
		info := rec.info()
		if expired {
			changed = append(changed, info)
		}
		out = append(out, info)
	}
	r.mu.Unlock()

	for _, info := range changed {
		r.notify(info)
	}
	sort.Slice(out, func(i, j int) bool {
		return normalize(out[i].ServiceName) < normalize(out[j].ServiceName)
	})
	return out
}

func (r *CircuitRegistry) notify(info CircuitInfo) {
	metrics.CircuitState.WithLabelValues(normalize(info.ServiceName)).Set(info.State.gaugeValue())
	if r.onChange != nil {
		r.onChange(info)
	}
}
