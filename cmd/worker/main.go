package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/mtr002/jobcore/internal/api"
	"github.com/mtr002/jobcore/internal/config"
	"github.com/mtr002/jobcore/internal/db"
	jobgrpc "github.com/mtr002/jobcore/internal/grpc"
	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
	"github.com/mtr002/jobcore/internal/logger"
	jobnats "github.com/mtr002/jobcore/internal/nats"
	"github.com/mtr002/jobcore/internal/resilience"
	"github.com/mtr002/jobcore/internal/websocket"
	"github.com/mtr002/jobcore/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		logger.Logger.Error().Err(err).Msg("Worker exited with error")
		os.Exit(1)
	}
	logger.Logger.Info().Msg("Worker Service stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	circuits := resilience.NewCircuitRegistry(resilience.WithStateListener(hub.CircuitChanged))
	retryPolicy := resilience.NewRetryPolicy(
		resilience.WithMaxRetries(cfg.RetryMaxAttempts),
		resilience.WithBaseDelay(cfg.RetryBaseDelay),
	)
	guard := resilience.NewGuard(circuits, retryPolicy,
		resilience.WithFailureThreshold(cfg.CircuitFailureThreshold),
		resilience.WithBreakDuration(cfg.CircuitBreakDuration),
	)

	registry, err := jobs.NewRegistry(worker.DefaultHandlers(guard)...)
	if err != nil {
		return fmt.Errorf("failed to build handler registry: %w", err)
	}

	outcomes := jobs.NewOutcomeLog(cfg.OutcomeHistory)
	recorders := []interfaces.OutcomeRecorder{outcomes, hub}
	var checks []api.Check

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(db.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.RunMigrations(database); err != nil {
			return err
		}
		store := db.NewOutcomeStore(database)
		recorders = append(recorders, store)
		checks = append(checks, api.Check{Name: "database", Fn: store.Ping})
	}

	var natsConn *natsgo.Conn
	if cfg.UseNATS {
		natsConn, err = jobnats.Connect(cfg.NATSURL, cfg.ServiceName)
		if err != nil {
			return err
		}
		defer natsConn.Close()

		recorders = append(recorders, jobnats.NewOutcomePublisher(natsConn))
		checks = append(checks, api.Check{Name: "nats", Fn: func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}

	var processor *worker.Processor
	var resubmitter *jobs.Resubmitter
	if cfg.ResubmitFailed {
		resubmitter = jobs.NewResubmitter(jobs.EnqueuerFunc(func(job *interfaces.JobContract) error {
			return processor.EnqueueJob(job)
		}), registry, cfg.ResubmitBaseDelay)
		defer resubmitter.Close()
		recorders = append(recorders, resubmitter)
	}

	processor = worker.NewProcessor(registry, worker.WithRecorder(jobs.Recorders(recorders...)))
	checks = append(checks, api.Check{Name: "processor", Fn: func(context.Context) error {
		if !processor.Running() {
			return errors.New("processing loop not running")
		}
		return nil
	}})

	manager := jobs.NewManager(processor, cfg.DefaultMaxAttempts)

	if natsConn != nil {
		natsServer := jobnats.NewServer(natsConn, manager)
		if err := natsServer.Subscribe(); err != nil {
			return err
		}
		defer natsServer.Close()
		logger.Logger.Info().Str("url", cfg.NATSURL).Msg("NATS consumer started")
	}

	// The processor is stopped explicitly so in-flight jobs can finish.
	if err := processor.Start(context.Background()); err != nil {
		return err
	}

	grpcServer := jobgrpc.NewGRPCServer(jobgrpc.NewServer(manager, processor, circuits, outcomes, registry))
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	mux := http.NewServeMux()
	api.AddWorkerRoutes(mux, api.WorkerDeps{
		Manager:  manager,
		Stats:    processor,
		Circuits: circuits,
		Outcomes: outcomes,
		Hub:      hub,
		Health:   api.NewHealth(cfg.ServiceName, checks...).WithOpenCircuits(api.OpenCircuits(circuits)),
	})
	httpServer := api.NewServer(mux, cfg.HTTPPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Logger.Info().Str("port", cfg.GRPCPort).Msg("Worker Service gRPC server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Logger.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		if resubmitter != nil {
			resubmitter.Close()
		}
		if stopErr := processor.Stop(shutdownCtx); stopErr != nil {
			logger.Logger.Warn().Err(stopErr).Msg("Processor stopped with in-flight job cancelled")
		}
		logger.Logger.Info().
			Int("queue_depth", processor.QueueDepth()).
			Int64("processed", processor.ProcessedCount()).
			Msg("Processor drained")
		return err
	})

	return g.Wait()
}
