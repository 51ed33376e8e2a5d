package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/metrics"
)

const (
	// MaxRetryAttempts is the number of retries after the initial attempt.
	MaxRetryAttempts = 3
	// BaseDelaySeconds gives delays of 2s, 4s and 8s for retries 1, 2 and 3.
	BaseDelaySeconds = 2
)

// RetryEvent describes a retry that is about to be scheduled.
type RetryEvent struct {
	// Attempt is the 1-indexed attempt that just failed.
	Attempt        int
	Delay          time.Duration
	Err            error
	Classification Classification
}

// RetryPolicy runs an operation with classification-driven exponential backoff.
// It has no knowledge of circuit state; see Guard for the composed form.
// A RetryPolicy is safe for concurrent use.
type RetryPolicy struct {
	maxRetries uint64
	baseDelay  time.Duration
	classify   func(error) Classification
	onRetry    func(RetryEvent)
	logger     zerolog.Logger
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithMaxRetries overrides the number of retries after the first attempt.
func WithMaxRetries(n int) RetryOption {
	return func(p *RetryPolicy) {
		if n >= 0 {
			p.maxRetries = uint64(n)
		}
	}
}

// WithBaseDelay sets the first retry delay; later delays double.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		if d > 0 {
			p.baseDelay = d
		}
	}
}

// WithClassifier replaces the default Classify function.
func WithClassifier(fn func(error) Classification) RetryOption {
	return func(p *RetryPolicy) { p.classify = fn }
}

// WithRetryObserver registers a callback invoked before each backoff delay.
func WithRetryObserver(fn func(RetryEvent)) RetryOption {
	return func(p *RetryPolicy) { p.onRetry = fn }
}

// WithRetryLogger sets the logger used for retry warnings.
func WithRetryLogger(l zerolog.Logger) RetryOption {
	return func(p *RetryPolicy) { p.logger = l }
}

// NewRetryPolicy creates a policy with 3 retries and a 2s base delay.
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxRetries: MaxRetryAttempts,
		baseDelay:  BaseDelaySeconds * time.Second,
		classify:   Classify,
		logger:     logger.WithComponent("storage-retry"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do invokes op until it succeeds, fails with a non-retryable error, or the
// retries are exhausted. In the last two cases the original error is returned
// unwrapped. Cancellation of ctx before an attempt or during a delay returns
// ctx.Err() immediately.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var (
		attempt int
		lastErr error
		last    Classification
	)

	b := retry.WithMaxRetries(p.maxRetries, retry.NewExponential(p.baseDelay))
	observed := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := b.Next()
		if stop {
			return 0, true
		}
		p.logger.Warn().
			Str("component", "storage-retry").
			Int("attempt", attempt).
			Uint64("max_retries", p.maxRetries).
			Dur("delay", delay).
			Str("status", last.Status).
			Str("resource", last.Resource).
			Err(lastErr).
			Msg("Retryable storage error, backing off")
		metrics.RetryAttemptsTotal.WithLabelValues(last.Status).Inc()
		if p.onRetry != nil {
			p.onRetry(RetryEvent{Attempt: attempt, Delay: delay, Err: lastErr, Classification: last})
		}
		return delay, false
	})

	return retry.Do(ctx, observed, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		c := p.classify(err)
		if !c.Retryable {
			return err
		}
		lastErr, last = err, c
		return retry.RetryableError(err)
	})
}

// Execute is the value-returning form of RetryPolicy.Do.
func Execute[T any](ctx context.Context, p *RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
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
