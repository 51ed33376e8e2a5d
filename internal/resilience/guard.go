package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/logger"
)

const (
	DefaultFailureThreshold = 5
	DefaultBreakDuration    = 30 * time.Second
)

// Guard composes a CircuitRegistry and a RetryPolicy for outbound calls. It
// short-circuits calls to services whose circuit is open and drives the
// Closed -> Open -> HalfOpen -> Closed transitions from observed results.
type Guard struct {
	circuits         *CircuitRegistry
	retry            *RetryPolicy
	failureThreshold int
	breakDuration    time.Duration
	logger           zerolog.Logger
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithFailureThreshold sets how many consecutive service faults open a circuit.
func WithFailureThreshold(n int) GuardOption {
	return func(g *Guard) {
		if n > 0 {
			g.failureThreshold = n
		}
	}
}

// WithBreakDuration sets how long an opened circuit stays open.
func WithBreakDuration(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.breakDuration = d
		}
	}
}

// WithGuardLogger sets the guard logger.
func WithGuardLogger(l zerolog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// NewGuard creates a Guard over the given registry and policy
func NewGuard(circuits *CircuitRegistry, retry *RetryPolicy, opts ...GuardOption) *Guard {
	g := &Guard{
		circuits:         circuits,
		retry:            retry,
		failureThreshold: DefaultFailureThreshold,
		breakDuration:    DefaultBreakDuration,
		logger:           logger.WithComponent("guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Circuits returns the underlying registry.
func (g *Guard) Circuits() *CircuitRegistry {
	return g.circuits
}

// Do runs op against service. It returns an error wrapping ErrCircuitOpen
// without calling op when the circuit is open; otherwise op runs under the
// retry policy and the outcome is recorded against the circuit.
func (g *Guard) Do(ctx context.Context, service string, op func(ctx context.Context) error) error {
	g.circuits.RegisterCircuit(service)

	info := g.circuits.GetCircuitInfo(service)
	if !info.IsAvailable {
		return fmt.Errorf("%w: %s unavailable until %s", ErrCircuitOpen, info.ServiceName, info.OpenUntil.Format(time.RFC3339))
	}
	probe := info.State == CircuitHalfOpen

	err := g.retry.Do(ctx, op)
	if err == nil {
		g.onSuccess(service)
		return nil
	}
	if IsServiceFault(err) {
		g.onFailure(service, probe)
	}
	return err
}

func (g *Guard) onSuccess(service string) {
	if g.circuits.RecordSuccess(service).State == CircuitHalfOpen {
		if err := g.circuits.RecordStateChange(service, CircuitClosed, 0); err != nil {
			g.logger.Error().Err(err).Str("service", service).Msg("Failed to close circuit")
		}
	}
}

func (g *Guard) onFailure(service string, probe bool) {
	info := g.circuits.RecordFailure(service)
	if info.State == CircuitOpen {
		return
	}
	if !probe && info.State != CircuitHalfOpen && info.ConsecutiveFailures < g.failureThreshold {
		return
	}

	g.logger.Warn().
		Str("service", info.ServiceName).
		Int("consecutive_failures", info.ConsecutiveFailures).
		Bool("probe", probe).
		Msg("Opening circuit")
	if err := g.circuits.RecordStateChange(service, CircuitOpen, g.breakDuration); err != nil {
		g.logger.Error().Err(err).Str("service", service).Msg("Failed to open circuit")
	}
}

// GuardExecute is the value-returning form of Guard.Do.
func GuardExecute[T any](ctx context.Context, g *Guard, service string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := g.Do(ctx, service, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
