package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	UserAgent   string `env:"USER_AGENT" envDefault:"Hookline-Webhooks/1.0"`

	NumWorkers          int `env:"NUM_WORKERS" envDefault:"50"`
	DispatchConcurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"16"`

	RetrySchedule     []time.Duration `env:"RETRY_SCHEDULE" envDefault:"1m,5m,30m" envSeparator:","`
	RetryPollInterval time.Duration   `env:"RETRY_POLL_INTERVAL" envDefault:"1s"`
	RetryBatchSize    int64           `env:"RETRY_BATCH_SIZE" envDefault:"10"`

	DefaultTimeoutSeconds int           `env:"DEFAULT_TIMEOUT_SECONDS" envDefault:"30"`
	MaxTimeoutSeconds     int           `env:"MAX_TIMEOUT_SECONDS" envDefault:"60"`
	DefaultMaxRetries     int           `env:"DEFAULT_MAX_RETRIES" envDefault:"3"`
	MaxRetryAttemptsLimit int           `env:"MAX_RETRY_ATTEMPTS_LIMIT" envDefault:"10"`
	ProbeTimeout          time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`

	// CircuitBreakerThreshold of 0 disables the circuit breaker.
	CircuitBreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	CircuitBreakerCooldown  time.Duration `env:"CIRCUIT_BREAKER_COOLDOWN" envDefault:"30s"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.NumWorkers <= 0 {
		errs = append(errs, errors.New("NUM_WORKERS must be positive"))
	}
	if c.DispatchConcurrency <= 0 {
		errs = append(errs, errors.New("DISPATCH_CONCURRENCY must be positive"))
	}
	if len(c.RetrySchedule) == 0 {
		errs = append(errs, errors.New("RETRY_SCHEDULE must not be empty"))
	}
	for i, d := range c.RetrySchedule {
		if d < 0 {
			errs = append(errs, fmt.Errorf("RETRY_SCHEDULE[%d] must not be negative", i))
		}
		if i > 0 && d < c.RetrySchedule[i-1] {
			errs = append(errs, fmt.Errorf("RETRY_SCHEDULE must be non-decreasing, %s < %s", d, c.RetrySchedule[i-1]))
		}
	}
	if c.RetryPollInterval <= 0 {
		errs = append(errs, errors.New("RETRY_POLL_INTERVAL must be positive"))
	}
	if c.RetryBatchSize <= 0 {
		errs = append(errs, errors.New("RETRY_BATCH_SIZE must be positive"))
	}
	if c.MaxTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("MAX_TIMEOUT_SECONDS must be positive"))
	}
	if c.DefaultTimeoutSeconds <= 0 || c.DefaultTimeoutSeconds > c.MaxTimeoutSeconds {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEOUT_SECONDS must be in 1..%d", c.MaxTimeoutSeconds))
	}
	if c.MaxRetryAttemptsLimit < 0 {
		errs = append(errs, errors.New("MAX_RETRY_ATTEMPTS_LIMIT must not be negative"))
	}
	if c.DefaultMaxRetries < 0 || c.DefaultMaxRetries > c.MaxRetryAttemptsLimit {
		errs = append(errs, fmt.Errorf("DEFAULT_MAX_RETRIES must be in 0..%d", c.MaxRetryAttemptsLimit))
	}
	if c.CircuitBreakerThreshold < 0 {
		errs = append(errs, errors.New("CIRCUIT_BREAKER_THRESHOLD must not be negative"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
