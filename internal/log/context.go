package log

import (
	"context"
	"log/slog"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	return FromContextOr(ctx, &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	})
}

// FromContextOr returns the logger carried by ctx, or fallback.
func FromContextOr(ctx context.Context, fallback *Logger) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return fallback
}

// RunLogger provides structured logging for pipeline runs
type RunLogger struct {
	logger *Logger
}

// NewRunLogger creates a new run logger
func NewRunLogger(logger *Logger) *RunLogger {
	return &RunLogger{logger: logger}
}

// LogRunStart logs the start of a run
func (rl *RunLogger) LogRunStart(ctx context.Context, runID, monthA, monthB, dimension string) {
	fields := NewFields().
		WithRunID(runID).
		WithMonths(monthA, monthB).
		WithOperation(OpStartup)
	fields[FieldDimension] = dimension
	rl.logger.InfoContext(ctx, "Run started", fields.ToSlice()...)
}

// LogRunEnd logs the completion of a run. Failed runs are logged at error level.
func (rl *RunLogger) LogRunEnd(ctx context.Context, runID string, durationMs int64, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	fields := NewFields().
		WithRunID(runID).
		WithDuration(durationMs, err == nil).
		WithError(err).
		WithComponent(rl.logger.Component())
	rl.logger.Logger.Log(ctx, level, "Run completed", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (rl *RunLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)
	rl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
