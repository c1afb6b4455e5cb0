package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gmvbridge/internal/core"
)

// Input backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// Input
	InputBackend     string
	InputDir         string
	SnapshotCacheTTL time.Duration

	// Database
	SQLiteDBPath string
	WriteSQLite  bool
	ShardWriters int

	// Run options
	MonthA            string
	MonthB            string
	Dimension         string
	TopN              int
	MixWeighting      string
	DrilldownMetric   string
	IdentityTolerance float64

	// Outputs
	OutputXLSXPath      string
	OutputParquetDir    string
	GoogleSpreadsheetID string

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		InputBackend: getEnv("INPUT_BACKEND", BackendCSV),
		InputDir:     getEnv("INPUT_DIR", "./data/olist"),

		SnapshotCacheTTL: getEnvDuration("SNAPSHOT_CACHE_TTL", 0),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gmvbridge.db"),
		WriteSQLite:  getEnvBool("WRITE_SQLITE", false),
		ShardWriters: getEnvInt("SHARD_WRITERS", 4),

		MonthA:            getEnv("MONTH_A", ""),
		MonthB:            getEnv("MONTH_B", ""),
		Dimension:         getEnv("DIMENSION", string(core.CategoryDimension)),
		TopN:              getEnvInt("TOP_N", 10),
		MixWeighting:      getEnv("MIX_WEIGHTING", "raw"),
		DrilldownMetric:   getEnv("DRILLDOWN_METRIC", string(core.MetricUnitPrice)),
		IdentityTolerance: getEnvFloat("IDENTITY_TOLERANCE", core.DefaultTolerance),

		OutputXLSXPath:      getEnv("OUTPUT_XLSX_PATH", "./out/gmv_bridge.xlsx"),
		OutputParquetDir:    getEnv("OUTPUT_PARQUET_DIR", ""),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "gmvbridge"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "recompute_requests"),
		AMQPEventsQueue: getEnv("AMQP_EVENTS_QUEUE", "run_events"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// UsesSQLite reports whether the run reads from or writes to SQLite.
func (c *Config) UsesSQLite() bool {
	return c.InputBackend == BackendSQLite || c.WriteSQLite
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate input backend
	validBackends := []string{BackendCSV, BackendSQLite, BackendMemory}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.InputBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid input backend '%s': must be one of %v", c.InputBackend, validBackends))
	}

	if c.InputBackend == BackendCSV {
		if c.InputDir == "" {
			errors = append(errors, "input directory cannot be empty when using csv backend")
		} else if info, err := os.Stat(c.InputDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("input directory does not exist: %s", c.InputDir))
		}
	}

	// Validate SQLite configuration if it is read or written
	if c.UsesSQLite() {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when SQLite is used")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}
	if c.SnapshotCacheTTL < 0 || c.SnapshotCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache TTL %v: must be between 0 and 24 hours", c.SnapshotCacheTTL))
	}
	if c.ShardWriters < 1 || c.ShardWriters > 64 {
		errors = append(errors, fmt.Sprintf("invalid shard writers %d: must be between 1 and 64", c.ShardWriters))
	}

	// Validate run options
	monthA, errA := parseOptionalMonth(c.MonthA)
	if errA != nil {
		errors = append(errors, fmt.Sprintf("invalid MONTH_A '%s': %v", c.MonthA, errA))
	}
	monthB, errB := parseOptionalMonth(c.MonthB)
	if errB != nil {
		errors = append(errors, fmt.Sprintf("invalid MONTH_B '%s': %v", c.MonthB, errB))
	}
	if errA == nil && errB == nil {
		switch {
		case monthA.IsZero() != monthB.IsZero():
			errors = append(errors, "MONTH_A and MONTH_B must be set together")
		case !monthA.IsZero() && !monthA.Before(monthB):
			errors = append(errors, fmt.Sprintf("MONTH_A %s must precede MONTH_B %s", monthA, monthB))
		}
	}
	if _, err := core.ParseDimension(c.Dimension); err != nil {
		errors = append(errors, fmt.Sprintf("invalid dimension '%s': must be one of %v", c.Dimension, core.Dimensions()))
	}
	if c.TopN < 1 {
		errors = append(errors, fmt.Sprintf("invalid top N %d: must be at least 1", c.TopN))
	}
	if c.MixWeighting != "raw" && c.MixWeighting != "renormalized" {
		errors = append(errors, fmt.Sprintf("invalid mix weighting '%s': must be raw or renormalized", c.MixWeighting))
	}
	if _, err := core.ParseDrilldownMetric(c.DrilldownMetric); err != nil {
		errors = append(errors, fmt.Sprintf("invalid drill-down metric '%s'", c.DrilldownMetric))
	}
	if c.IdentityTolerance <= 0 || c.IdentityTolerance >= 1 {
		errors = append(errors, fmt.Sprintf("invalid identity tolerance %g: must be in (0, 1)", c.IdentityTolerance))
	}

	// Validate outputs
	if c.OutputXLSXPath != "" && !strings.EqualFold(filepath.Ext(c.OutputXLSXPath), ".xlsx") {
		errors = append(errors, fmt.Sprintf("invalid workbook path '%s': must end in .xlsx", c.OutputXLSXPath))
	}
	if c.OutputParquetDir != "" {
		if info, err := os.Stat(c.OutputParquetDir); err == nil && !info.IsDir() {
			errors = append(errors, fmt.Sprintf("invalid parquet output directory '%s': not a directory", c.OutputParquetDir))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsQueue == "" {
			errors = append(errors, "AMQP events queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Months returns the configured drill-down months. Both are zero when unset.
func (c *Config) Months() (core.Month, core.Month, error) {
	a, err := parseOptionalMonth(c.MonthA)
	if err != nil {
		return core.Month{}, core.Month{}, err
	}
	b, err := parseOptionalMonth(c.MonthB)
	if err != nil {
		return core.Month{}, core.Month{}, err
	}
	return a, b, nil
}

func parseOptionalMonth(s string) (core.Month, error) {
	if strings.TrimSpace(s) == "" {
		return core.Month{}, nil
	}
	return core.ParseMonth(s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
