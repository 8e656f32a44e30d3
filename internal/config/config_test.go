package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Empty values fall back to the struct tag defaults.
	for _, key := range []string{"DB_HOST", "DB_PORT", "MIGRATION_RETRY_COUNT", "MIGRATION_RETRY_DELAY", "MIGRATION_WAIT_ATTEMPTS", "MIGRATION_WAIT_DELAY"} {
		t.Setenv(key, "")
	}
	t.Setenv("DB_USER", "deckvault")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "decks")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RetryCount != 3 || cfg.RetryDelay != 5*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.WaitAttempts != 30 || cfg.WaitDelay != 2*time.Second {
		t.Fatalf("unexpected wait defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateReportsAllMissingVariables(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, name := range []string{"DB_USER", "DB_PASSWORD", "DB_NAME"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %s in error, got %v", name, err)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for value, want := range cases {
		if got := (Config{LogLevel: value}).SlogLevel(); got != want {
			t.Errorf("level %q: expected %v, got %v", value, want, got)
		}
	}
}

func TestDatabaseConfig(t *testing.T) {
	cfg := Config{
		DBHost:     "db.internal",
		DBPort:     5433,
		DBUser:     "deckvault",
		DBPassword: "secret",
		DBName:     "decks",
		DBSSLMode:  "require",
	}
	dbCfg := cfg.Database()
	if dbCfg.Host != "db.internal" || dbCfg.Port != 5433 || dbCfg.SSLMode != "require" {
		t.Fatalf("unexpected database config: %+v", dbCfg)
	}
}
