package backend

import (
	"errors"
	"fmt"

	"gmvbridge/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.InputBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.InputBackend)
	}

	return Config{
		Type: backendType,

		InputDir:         appConfig.InputDir,
		SnapshotCacheTTL: appConfig.SnapshotCacheTTL,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		WriteSQLite:  appConfig.WriteSQLite,
		ShardWriters: appConfig.ShardWriters,

		OutputXLSXPath:      appConfig.OutputXLSXPath,
		OutputParquetDir:    appConfig.OutputParquetDir,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,

		AMQPURL:         appConfig.AMQPURL,
		AMQPExchange:    appConfig.AMQPExchange,
		AMQPQueue:       appConfig.AMQPQueue,
		AMQPEventsQueue: appConfig.AMQPEventsQueue,
	}, nil
}

// UsesSQLite reports whether a repository must be opened.
func (c Config) UsesSQLite() bool {
	return c.Type == SQLiteBackend || c.WriteSQLite
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case CSVBackend:
		if c.InputDir == "" {
			return errors.New("input directory is required for csv backend")
		}
	case MemoryBackend:
		// Memory backend starts empty; callers load a snapshot into it
	}
	if c.UsesSQLite() && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required when SQLite is used")
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{CSVBackend, SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
