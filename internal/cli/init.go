// Package cli provides common CLI initialization utilities shared by
// cmd/fintrack and cmd/fintrack-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the given level and installs it
// as the slog default, so packages that log through slog.Default agree with it.
func SetupLogger(level, component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(level)
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and runs each validator over it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger, validators ...func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if len(validators) == 0 {
		validators = []func(*config.Config) error{(*config.Config).Validate}
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed",
				applog.FieldError, err,
				applog.FieldErrorType, applog.ErrorTypeConfiguration)
			os.Exit(1)
		}
	}
	return cfg
}

// InitSQLite opens the SQLite journal at dbPath, applying migrations.
// Returns the repository or exits the process on failure.
func InitSQLite(ctx context.Context, logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(ctx, dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
