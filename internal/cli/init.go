// Package cli provides common CLI initialization utilities shared by
// cmd/gmvbridge and cmd/gmvbridge-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gmvbridge/internal/config"
	"gmvbridge/internal/core"
	"gmvbridge/internal/decompose"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/services"
	"gmvbridge/internal/storage"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger. An unknown level falls back to info.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	lvl, err := applog.ParseLevel(level)
	if err == nil {
		cfg.Level = lvl
	}
	logger := applog.New(cfg).WithComponent(applog.ComponentApp)
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", level)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string, shardWriters int) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath,
		storage.WithShardWriters(shardWriters),
		storage.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, applog.FieldPath, dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// RunOptions maps the validated configuration onto run options.
func RunOptions(cfg *config.Config) (services.RunOptions, error) {
	monthA, monthB, err := cfg.Months()
	if err != nil {
		return services.RunOptions{}, err
	}
	dim, err := core.ParseDimension(cfg.Dimension)
	if err != nil {
		return services.RunOptions{}, err
	}
	metric, err := core.ParseDrilldownMetric(cfg.DrilldownMetric)
	if err != nil {
		return services.RunOptions{}, err
	}
	weighting, err := decompose.ParseWeighting(cfg.MixWeighting)
	if err != nil {
		return services.RunOptions{}, err
	}
	opts := services.RunOptions{
		MonthA:    monthA,
		MonthB:    monthB,
		Dimension: dim,
		TopN:      cfg.TopN,
		Metric:    metric,
		Weighting: weighting,
		Tolerance: cfg.IdentityTolerance,
	}
	if err := opts.Validate(); err != nil {
		return services.RunOptions{}, fmt.Errorf("run options: %w", err)
	}
	return opts, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), applog.FieldOperation, applog.OpShutdown)

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
