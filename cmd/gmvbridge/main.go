package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gmvbridge/internal/amqp"
	"gmvbridge/internal/backend"
	"gmvbridge/internal/cli"
	"gmvbridge/internal/config"
	"gmvbridge/internal/core"
	"gmvbridge/internal/input/csvdir"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/services"
)

func main() {
	importCSV := flag.Bool("import", false, "load the CSV files in INPUT_DIR into SQLITE_DB_PATH before running")
	request := flag.Bool("request", false, "publish a recompute request for the worker instead of running locally")
	flag.Parse()

	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *request {
		if err := publishRequest(ctx, cfg, logger); err != nil {
			logger.Error("Failed to publish recompute request", applog.FieldError, err)
			os.Exit(1)
		}
		return
	}

	opts, err := cli.RunOptions(cfg)
	if err != nil {
		logger.Error("Invalid run options", applog.FieldError, err)
		os.Exit(1)
	}

	if *importCSV {
		if err := importSnapshot(ctx, cfg, logger); err != nil {
			logger.Error("CSV import failed", applog.FieldError, err)
			os.Exit(1)
		}
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}

	svc := services.NewDecompositionService(res.Backend.Reader, res.Backend.Writers, res.Backend.Publisher(), logger)
	out, err := svc.Run(ctx, opts)
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Cleanup failed", applog.FieldError, cerr)
	}
	if err != nil {
		errType := applog.ErrorTypeInternal
		switch {
		case core.IsIdentityViolation(err):
			errType = applog.ErrorTypeIdentity
		case errors.Is(err, core.ErrInputUnavailable):
			errType = applog.ErrorTypeInput
		case errors.Is(err, core.ErrMonthNotFound):
			errType = applog.ErrorTypeNotFound
		}
		logger.Error("Run failed", applog.FieldError, err, "error_type", errType)
		os.Exit(1)
	}

	logger.Info("Run finished",
		applog.FieldRunID, out.Summary.Run.ID,
		"facts", out.Summary.Facts,
		"months", out.Summary.Months,
		"steps", out.Summary.Steps,
		applog.FieldMonthA, out.Drilldown.MonthA.String(),
		applog.FieldMonthB, out.Drilldown.MonthB.String(),
		"drilldown_rows", out.Summary.DrilldownRows,
		"recalc_warnings", out.Summary.RecalcWarnings)
}

// importSnapshot copies the CSV snapshot into SQLite so later runs can use
// INPUT_BACKEND=sqlite.
func importSnapshot(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	start := time.Now()
	snap, err := csvdir.New(cfg.InputDir, logger).ReadSnapshot(ctx)
	if err != nil {
		return err
	}
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath, cfg.ShardWriters)
	defer repo.Close()
	if err := repo.LoadSnapshot(ctx, snap); err != nil {
		return err
	}
	logger.Info("Imported CSV snapshot",
		applog.FieldPath, cfg.SQLiteDBPath,
		"orders", len(snap.Orders),
		"items", len(snap.Items),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

func publishRequest(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required to publish a recompute request")
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPEventsQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	msg := amqp.NewRecomputeRequestMessage(cfg.MonthA, cfg.MonthB, cfg.Dimension)
	msg.TopN = cfg.TopN
	msg.Metric = cfg.DrilldownMetric
	return client.PublishRecomputeRequest(ctx, msg)
}
