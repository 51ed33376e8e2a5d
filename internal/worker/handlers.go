package worker

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/logger"
	"github.com/mtr002/jobcore/internal/resilience"
)

type textPayload struct {
	Text string `json:"text"`
}

// EchoHandler logs the payload text and completes
func EchoHandler() interfaces.JobHandler {
	return jobs.TypedHandler("echo", func(_ context.Context, job *interfaces.JobContract, p textPayload) error {
		logger.WithJobID(job.ID).Info().Str("text", p.Text).Msg("Echo")
		return nil
	})
}

// UppercaseHandler logs the upper-cased payload text
func UppercaseHandler() interfaces.JobHandler {
	return jobs.TypedHandler("uppercase", func(_ context.Context, job *interfaces.JobContract, p textPayload) error {
		logger.WithJobID(job.ID).Info().Str("text", strings.ToUpper(p.Text)).Msg("Uppercase")
		return nil
	})
}

// SlowHandler sleeps 1-5 seconds, honouring cancellation
func SlowHandler() interfaces.JobHandler {
	return jobs.HandlerFunc("slow", func(ctx context.Context, job *interfaces.JobContract) error {
		n, err := rand.Int(rand.Reader, big.NewInt(5))
		if err != nil {
			n = big.NewInt(2)
		}
		sleepDuration := time.Duration(n.Int64()+1) * time.Second
		logger.Logger.Debug().Str("job_id", job.ID).Dur("duration", sleepDuration).Msg("Slow job sleeping")

		timer := time.NewTimer(sleepDuration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}

// FailHandler always fails
func FailHandler() interfaces.JobHandler {
	return jobs.HandlerFunc("fail", func(context.Context, *interfaces.JobContract) error {
		return errors.New("simulated job failure")
	})
}

// WebhookPayload is the payload of a webhook job
type WebhookPayload struct {
	URL  string          `json:"url"`
	Body json.RawMessage `json:"body,omitempty"`
}

// WebhookHandler POSTs the payload body to a URL through guard. The circuit
// is keyed by the target host; non-2xx responses become StatusErrors so 404
// and 503 are retried by the guard's policy.
func WebhookHandler(client *http.Client, guard *resilience.Guard) interfaces.JobHandler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return jobs.TypedHandler("webhook", func(ctx context.Context, job *interfaces.JobContract, p WebhookPayload) error {
		target, err := url.Parse(p.URL)
		if err != nil || target.Host == "" {
			return fmt.Errorf("invalid webhook url %q", p.URL)
		}

		return guard.Do(ctx, target.Host, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(p.Body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Correlation-ID", job.CorrelationID)
			req.Header.Set("Idempotency-Key", job.IdempotencyKey)

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return resilience.NewStatusError(resp.StatusCode, strings.TrimSpace(string(body)))
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		})
	})
}

// DefaultHandlers returns the built-in handlers
func DefaultHandlers(guard *resilience.Guard) []interfaces.JobHandler {
	return []interfaces.JobHandler{
		EchoHandler(),
		UppercaseHandler(),
		SlowHandler(),
		FailHandler(),
		WebhookHandler(nil, guard),
	}
}
