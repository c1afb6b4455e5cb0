package backend

import (
	"context"
	"errors"
	"fmt"

	"gmvbridge/internal/amqp"
	"gmvbridge/internal/cache"
	"gmvbridge/internal/core"
	"gmvbridge/internal/input/csvdir"
	inmem "gmvbridge/internal/input/memory"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/report/google"
	"gmvbridge/internal/report/parquet"
	"gmvbridge/internal/report/xlsx"
	"gmvbridge/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. Outputs that cannot be
// initialized abort creation, except AMQP which is optional: without a broker
// runs still complete, they just are not announced.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{}
	var cleanups []CleanupFunc
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*BackendResult, error) {
		_ = cleanup()
		return nil, err
	}

	if config.UsesSQLite() {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath,
			storage.WithShardWriters(config.ShardWriters),
			storage.WithLogger(f.logger))
		if err != nil {
			return fail(fmt.Errorf("failed to initialize SQLite repository: %w", err))
		}
		b.Repo = repo
		cleanups = append(cleanups, repo.Close)
	}

	source := config.Type.String()
	switch config.Type {
	case CSVBackend:
		b.Reader = csvdir.New(config.InputDir, f.logger)
		source += ":" + config.InputDir
	case SQLiteBackend:
		b.Reader = b.Repo
		source += ":" + config.SQLiteDBPath
	case MemoryBackend:
		b.Reader = inmem.New(core.Snapshot{})
	default:
		return fail(fmt.Errorf("unsupported backend type: %s", config.Type))
	}
	if config.SnapshotCacheTTL > 0 {
		b.Reader = cache.NewSnapshotReader(b.Reader, source, config.SnapshotCacheTTL, f.logger)
	}

	if config.WriteSQLite {
		b.Writers = append(b.Writers, b.Repo)
	}
	if config.OutputXLSXPath != "" {
		b.Writers = append(b.Writers, xlsx.New(config.OutputXLSXPath, f.logger))
	}
	if config.OutputParquetDir != "" {
		b.Writers = append(b.Writers, parquet.New(config.OutputParquetDir, config.ShardWriters, f.logger))
	}
	if config.GoogleSpreadsheetID != "" {
		dash, err := google.NewFromEnv(ctx, config.GoogleSpreadsheetID, f.logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Google Sheets client: %w", err))
		}
		b.Writers = append(b.Writers, dash)
	}
	if len(b.Writers) == 0 {
		f.logger.Warn("No output configured, results are computed but not written")
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, config.AMQPEventsQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without notifications", applog.FieldError, err)
		} else {
			b.AMQP = client
			cleanups = append(cleanups, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue,
				"events_queue", config.AMQPEventsQueue)
		}
	}

	f.logger.Info("Initialized backend",
		applog.FieldBackend, config.Type.String(),
		"writers", len(b.Writers),
		"sqlite", b.Repo != nil,
		"amqp", b.AMQP != nil)

	return &BackendResult{
		Backend: b,
		Cleanup: cleanup,
	}, nil
}
