package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls jobcore.WorkerService
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient creates a lazily connecting client for addr. Extra dial options
// are appended after the defaults.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", addr, err)
	}

	return &Client{
		conn:    conn,
		timeout: 10 * time.Second,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// SubmitJob forwards a submission to the worker
func (c *Client) SubmitJob(ctx context.Context, req *SubmitJobRequest) (*SubmitJobResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(SubmitJobResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/SubmitJob", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetStats fetches the worker's diagnostics snapshot
func (c *Client) GetStats(ctx context.Context) (*StatsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(StatsResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/GetStats", &GetStatsRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
