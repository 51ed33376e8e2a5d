package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mtr002/jobcore/internal/logger"
)

// Config holds the settings shared by the worker and the gateway
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"jobcore-worker"`

	HTTPPort   string `env:"HTTP_PORT" envDefault:"8080"`
	GRPCPort   string `env:"GRPC_PORT" envDefault:"8081"`
	WorkerAddr string `env:"WORKER_ADDR" envDefault:"localhost:8081"`

	UseNATS bool   `env:"USE_NATS" envDefault:"false"`
	NATSURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// DatabaseURL enables the outcome audit log when set
	DatabaseURL string `env:"DATABASE_URL"`

	DefaultMaxAttempts int           `env:"DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	ResubmitFailed     bool          `env:"RESUBMIT_FAILED" envDefault:"false"`
	ResubmitBaseDelay  time.Duration `env:"RESUBMIT_BASE_DELAY" envDefault:"1s"`

	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`

	CircuitFailureThreshold int           `env:"CIRCUIT_FAILURE_THRESHOLD" envDefault:"5"`
	CircuitBreakDuration    time.Duration `env:"CIRCUIT_BREAK_DURATION" envDefault:"30s"`

	OutcomeHistory  int           `env:"OUTCOME_HISTORY" envDefault:"256"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load reads an optional .env file and parses the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Logger.Debug().Err(err).Msg("No .env file loaded")
	}
	return Parse()
}

// Parse builds a Config from the process environment only
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the processor cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.DefaultMaxAttempts <= 0 {
		errs = append(errs, errors.New("DEFAULT_MAX_ATTEMPTS must be positive"))
	}
	if c.RetryMaxAttempts < 0 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must not be negative"))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("RETRY_BASE_DELAY must be positive"))
	}
	if c.ResubmitBaseDelay <= 0 {
		errs = append(errs, errors.New("RESUBMIT_BASE_DELAY must be positive"))
	}
	if c.CircuitFailureThreshold <= 0 {
		errs = append(errs, errors.New("CIRCUIT_FAILURE_THRESHOLD must be positive"))
	}
	if c.CircuitBreakDuration <= 0 {
		errs = append(errs, errors.New("CIRCUIT_BREAK_DURATION must be positive"))
	}
	if c.OutcomeHistory <= 0 {
		errs = append(errs, errors.New("OUTCOME_HISTORY must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
