package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/logger"
)

// OutcomeStore appends every recorded outcome to the job_outcomes table.
// It is an audit trail only; processing never reads from it.
type OutcomeStore struct {
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// NewOutcomeStore creates a new outcome store
func NewOutcomeStore(db *sql.DB) *OutcomeStore {
	return &OutcomeStore{
		db:      db,
		timeout: 5 * time.Second,
		logger:  logger.WithComponent("outcome-store"),
	}
}

// Record implements interfaces.OutcomeRecorder. Write failures are logged
// and do not affect the processor.
func (s *OutcomeStore) Record(ctx context.Context, job *interfaces.JobContract, outcome interfaces.JobOutcome) {
	if err := s.Insert(ctx, job, outcome); err != nil {
		s.logger.Error().Err(err).Str("job_id", outcome.JobID).Msg("Failed to persist job outcome")
	}
}

// Insert writes one outcome row
func (s *OutcomeStore) Insert(ctx context.Context, job *interfaces.JobContract, outcome interfaces.JobOutcome) error {
	// The processor context may already be cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	query := `
		INSERT INTO job_outcomes (job_id, job_type, status, attempt, max_attempts, duration_ms, error, correlation_id, idempotency_key, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		outcome.JobID, outcome.JobType, string(outcome.Status), outcome.Attempt, job.MaxAttempts,
		outcome.Duration.Milliseconds(), nullString(outcome.ErrorMessage),
		nullString(job.CorrelationID), nullString(job.IdempotencyKey), outcome.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first
func (s *OutcomeStore) Recent(ctx context.Context, limit int) ([]interfaces.JobOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT job_id, job_type, status, attempt, duration_ms, error, recorded_at
		FROM job_outcomes ORDER BY recorded_at DESC, id DESC LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	return scanOutcomes(rows)
}

// ForJob returns every outcome recorded for jobID in attempt order
func (s *OutcomeStore) ForJob(ctx context.Context, jobID string) ([]interfaces.JobOutcome, error) {
	query := `
		SELECT job_id, job_type, status, attempt, duration_ms, error, recorded_at
		FROM job_outcomes WHERE job_id = $1 ORDER BY attempt ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes for job %s: %w", jobID, err)
	}
	return scanOutcomes(rows)
}

// Ping checks the connection for readiness probes
func (s *OutcomeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanOutcomes(rows *sql.Rows) ([]interfaces.JobOutcome, error) {
	defer rows.Close()

	var outcomes []interfaces.JobOutcome
	for rows.Next() {
		var (
			o          interfaces.JobOutcome
			status     string
			durationMs int64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&o.JobID, &o.JobType, &status, &o.Attempt, &durationMs, &errMsg, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = interfaces.OutcomeStatus(status)
		o.Duration = time.Duration(durationMs) * time.Millisecond
		o.ErrorMessage = errMsg.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return outcomes, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
