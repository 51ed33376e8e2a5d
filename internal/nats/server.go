package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/logger"
)

// queueGroup spreads submissions across worker instances
const queueGroup = "jobcore-workers"

// Submitter accepts job submissions
type Submitter interface {
	Submit(s jobs.Submission) (*interfaces.JobContract, error)
}

type Server struct {
	conn      *nats.Conn
	sub       *nats.Subscription
	submitter Submitter
	logger    zerolog.Logger
}

func NewServer(conn *nats.Conn, submitter Submitter) *Server {
	return &Server{
		conn:      conn,
		submitter: submitter,
		logger:    logger.WithComponent("nats-consumer"),
	}
}

func (s *Server) Subscribe() error {
	sub, err := s.conn.QueueSubscribe(JobSubmitSubject, queueGroup, func(msg *nats.Msg) {
		ack := s.handleSubmission(msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(ack)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to marshal submission ack")
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send submission ack")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to NATS: %w", err)
	}

	s.sub = sub
	return nil
}

func (s *Server) handleSubmission(data []byte) SubmissionAck {
	var msg JobSubmissionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed job submission")
		return SubmissionAck{Error: fmt.Sprintf("malformed submission: %v", err)}
	}

	job, err := s.submitter.Submit(msg.Submission())
	if err != nil {
		s.logger.Warn().Err(err).Str("type", msg.JobType).Msg("Rejected job submission")
		return SubmissionAck{CorrelationID: msg.CorrelationID, Error: err.Error()}
	}
	return SubmissionAck{JobID: job.ID, CorrelationID: job.CorrelationID}
}

func (s *Server) Close() {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to drain NATS subscription")
		}
	}
}
