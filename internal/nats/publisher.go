package nats

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/logger"
)

// Publisher is the subset of *nats.Conn used to emit outcomes
type Publisher interface {
	Publish(subject string, data []byte) error
}

// OutcomePublisher emits every recorded outcome on jobs.outcome
type OutcomePublisher struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewOutcomePublisher(pub Publisher) *OutcomePublisher {
	return &OutcomePublisher{
		pub:    pub,
		logger: logger.WithComponent("nats-outcomes"),
	}
}

// Record implements interfaces.OutcomeRecorder
func (p *OutcomePublisher) Record(_ context.Context, job *interfaces.JobContract, outcome interfaces.JobOutcome) {
	data, err := json.Marshal(NewOutcomeMessage(job, outcome))
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", outcome.JobID).Msg("Failed to marshal outcome")
		return
	}
	if err := p.pub.Publish(JobOutcomeSubject, data); err != nil {
		p.logger.Warn().Err(err).Str("job_id", outcome.JobID).Msg("Failed to publish outcome")
	}
}
