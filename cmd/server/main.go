package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mtr002/jobcore/internal/api"
	"github.com/mtr002/jobcore/internal/config"
	jobgrpc "github.com/mtr002/jobcore/internal/grpc"
	"github.com/mtr002/jobcore/internal/logger"
	jobnats "github.com/mtr002/jobcore/internal/nats"
	"github.com/mtr002/jobcore/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.ServiceName == "jobcore-worker" {
		cfg.ServiceName = "jobcore-gateway"
	}
	logger.Init(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	logger.Logger.Info().Msg("Starting API gateway")

	if err := run(cfg); err != nil {
		logger.Logger.Error().Err(err).Msg("Gateway exited with error")
		os.Exit(1)
	}
	logger.Logger.Info().Msg("Server stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	grpcClient, err := jobgrpc.NewClient(cfg.WorkerAddr)
	if err != nil {
		return err
	}
	defer grpcClient.Close()

	var forwarder api.Forwarder = grpcClient
	var checks []api.Check
	if cfg.UseNATS {
		natsClient, err := jobnats.NewClient(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		if err := natsClient.SubscribeOutcomes(func(msg *jobnats.JobOutcomeMessage) {
			websocket.BroadcastEvent(hub, websocket.EventJobOutcome, msg)
		}); err != nil {
			return err
		}

		forwarder = api.NATSForwarder(natsClient)
		checks = append(checks, api.Check{Name: "nats", Fn: func(context.Context) error {
			if !natsClient.Connected() {
				return errors.New("not connected")
			}
			return nil
		}})
		logger.Logger.Info().Str("url", cfg.NATSURL).Msg("Submitting jobs via NATS")
	} else {
		logger.Logger.Info().Str("worker", cfg.WorkerAddr).Msg("Submitting jobs via gRPC")
	}
	checks = append(checks, api.Check{Name: "worker", Fn: func(ctx context.Context) error {
		_, err := grpcClient.GetStats(ctx)
		return err
	}})

	mux := http.NewServeMux()
	api.AddGatewayRoutes(mux, api.GatewayDeps{
		Forwarder: forwarder,
		Stats:     grpcClient,
		Hub:       hub,
		Health:    api.NewHealth(cfg.ServiceName, checks...),
	})
	server := api.NewServer(mux, cfg.HTTPPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Logger.Info().Msg("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
