package main

import (
	"context"
	"errors"
	"os"
	"time"

	"gmvbridge/internal/backend"
	"gmvbridge/internal/cli"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/services"
	"gmvbridge/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	logger.Info("Starting gmvbridge-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	defaults, err := cli.RunOptions(cfg)
	if err != nil {
		logger.Error("Invalid run options", applog.FieldError, err)
		os.Exit(1)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	if res.Backend.AMQP == nil {
		_ = res.Cleanup()
		logger.Error("AMQP broker unreachable, worker cannot consume requests")
		os.Exit(1)
	}

	svc := services.NewDecompositionService(res.Backend.Reader, res.Backend.Writers, res.Backend.Publisher(), logger)
	recompute := worker.NewRecomputeWorker(svc, defaults, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", applog.FieldError, err)
		}
	})

	go func() {
		err := res.Backend.AMQP.ConsumeRecomputeRequests(ctx, recompute.HandleRecomputeRequest)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err, applog.FieldOperation, applog.OpConsume)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
