package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

type Client struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewClient(url string) (*Client, error) {
	conn, err := Connect(url, "jobcore-gateway")
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// PublishJobSubmission sends msg without waiting for the worker
func (c *Client) PublishJobSubmission(msg *JobSubmissionMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job submission message: %w", err)
	}

	if err := c.conn.Publish(JobSubmitSubject, data); err != nil {
		return fmt.Errorf("failed to publish job submission: %w", err)
	}

	return nil
}

// RequestJobSubmission sends msg and waits for the worker's acknowledgement
func (c *Client) RequestJobSubmission(ctx context.Context, msg *JobSubmissionMessage) (*SubmissionAck, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job submission message: %w", err)
	}

	reply, err := c.conn.RequestWithContext(ctx, JobSubmitSubject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to request job submission: %w", err)
	}

	var ack SubmissionAck
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		return nil, fmt.Errorf("failed to decode submission ack: %w", err)
	}
	if ack.Error != "" {
		return &ack, errors.New(ack.Error)
	}
	return &ack, nil
}

// SubscribeOutcomes calls fn for every outcome a worker publishes.
// Undecodable messages are skipped.
func (c *Client) SubscribeOutcomes(fn func(*JobOutcomeMessage)) error {
	sub, err := c.conn.Subscribe(JobOutcomeSubject, func(msg *nats.Msg) {
		var outcome JobOutcomeMessage
		if err := json.Unmarshal(msg.Data, &outcome); err != nil {
			return
		}
		fn(&outcome)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to outcomes: %w", err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Connected reports whether the connection is currently usable
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
