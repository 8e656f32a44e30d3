// Package config loads runner settings from the container environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/deckvault/schemarun/internal/database"
)

// Config collects every knob the runner and its container wrapper need.
// Defaults mirror the migration job's container environment.
type Config struct {
	DBHost     string `env:"DB_HOST" envDefault:"database"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MigrationsDir string        `env:"MIGRATIONS_DIR" envDefault:"./migrations"`
	Timeout       time.Duration `env:"MIGRATION_TIMEOUT" envDefault:"5m"`
	RetryCount    int           `env:"MIGRATION_RETRY_COUNT" envDefault:"3"`
	RetryDelay    time.Duration `env:"MIGRATION_RETRY_DELAY" envDefault:"5s"`
	WaitAttempts  int           `env:"MIGRATION_WAIT_ATTEMPTS" envDefault:"30"`
	WaitDelay     time.Duration `env:"MIGRATION_WAIT_DELAY" envDefault:"2s"`
	LogLevel      string        `env:"MIGRATION_LOG_LEVEL" envDefault:"info"`

	SuccessMarker string `env:"MIGRATION_SUCCESS_MARKER" envDefault:"/app/database/migrations/logs/migration_success"`
	FailureMarker string `env:"MIGRATION_FAILURE_MARKER" envDefault:"/app/database/migrations/logs/migration_failure"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the connection parameters that have no usable default.
func (c Config) Validate() error {
	var missing []string
	if c.DBUser == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DBPassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Database returns the connection parameters for database.Open.
func (c Config) Database() database.Config {
	return database.Config{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

// SlogLevel maps the configured verbosity onto a slog level, defaulting to
// info for unknown values.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
