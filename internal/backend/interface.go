package backend

import (
	"context"
	"time"

	"gmvbridge/internal/amqp"
	"gmvbridge/internal/input"
	"gmvbridge/internal/report"
	"gmvbridge/internal/services"
	"gmvbridge/internal/storage"
)

// Backend bundles the input reader and every output a run writes to.
type Backend struct {
	Reader  input.SnapshotReader
	Writers []report.Writer

	// Repo is set when SQLite is read from or written to.
	Repo *storage.SQLiteRepository
	// AMQP is nil when no broker is configured or it was unreachable.
	AMQP *amqp.Client
}

// Publisher returns the run-completed publisher, or nil without a broker.
func (b *Backend) Publisher() services.RunPublisher {
	if b.AMQP == nil {
		return nil
	}
	return b.AMQP
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Input backend type
	Type BackendType

	// CSV specific
	InputDir string

	// SnapshotCacheTTL keeps input snapshots in memory between runs; zero
	// disables the cache.
	SnapshotCacheTTL time.Duration

	// SQLite specific
	SQLiteDBPath string
	WriteSQLite  bool
	ShardWriters int

	// Outputs
	OutputXLSXPath      string
	OutputParquetDir    string
	GoogleSpreadsheetID string

	// AMQP, optional
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string
}

// BackendType represents the type of input backend
type BackendType string

const (
	CSVBackend    BackendType = "csv"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case CSVBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
