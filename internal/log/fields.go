package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldDuration  = "duration_ms"
	FieldSuccess   = "success"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldMonth     = "month"
	FieldMonthA    = "month_a"
	FieldMonthB    = "month_b"
	FieldDimension = "dimension"
	FieldFamily    = "family"
	FieldRows      = "rows"
	FieldPath      = "path"
	FieldBackend   = "backend"
	FieldSink      = "sink"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentInput     = "input"
	ComponentFacts     = "facts"
	ComponentDecompose = "decompose"
	ComponentDrilldown = "drilldown"
	ComponentStorage   = "storage"
	ComponentReport    = "report"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRead      = "read"
	OpBuild     = "build"
	OpAggregate = "aggregate"
	OpDecompose = "decompose"
	OpVerify    = "verify"
	OpRank      = "rank"
	OpWrite     = "write"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpMigrate   = "migrate"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeInput         = "input_error"
	ErrorTypeIdentity      = "identity_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRunID adds the run identifier
func (f LogFields) WithRunID(runID string) LogFields {
	f[FieldRunID] = runID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f["error_type"] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithMonths adds the compared months of a drill-down
func (f LogFields) WithMonths(a, b string) LogFields {
	f[FieldMonthA] = a
	f[FieldMonthB] = b
	return f
}

// WithDuration adds the elapsed time in milliseconds and the outcome
func (f LogFields) WithDuration(durationMs int64, success bool) LogFields {
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
