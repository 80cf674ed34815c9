// Package types holds the observability contracts shared by the pipeline,
// the adapters and the infrastructure packages.
//
// Design Patterns:
//   - Provider Pattern: Manages instances and configuration
//   - Dependency Inversion: Core depends on interfaces, not implementations
package types

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines the contract for structured logging.
// All methods are context-aware so request and trace identifiers stored on
// the context end up in every entry.
type Logger interface {
	// Info logs an informational message.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message with the associated error.
	//
	// Parameters:
	//   - ctx: Context for request tracing
	//   - msg: The log message describing the error context
	//   - err: The error object to be logged
	//   - fields: Additional structured fields for context
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a warning message.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs a debug message. Typically filtered out in production.
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger that includes fields in every entry.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
// Implementations should follow Prometheus naming conventions.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation type.
	RecordSuccess(operationType string)

	// RecordError increments the error counter for an operation and error type.
	//
	// Parameters:
	//   - operationType: The operation that failed (e.g., "invoke", "publish")
	//   - errorType: The category of error, usually an error code
	RecordError(operationType string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, duration float64)

	// RecordPayloadSize records the size of an event payload in bytes.
	RecordPayloadSize(source string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values can be any type that is JSON-serializable.
type Fields map[string]interface{}

// ContextKey is the type of context keys read by loggers.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	PlatformKey  ContextKey = "platform"
)

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName identifies the service in logs and metrics.
	ServiceName string

	// Environment specifies the deployment environment
	// ("development", "staging", "production").
	Environment string

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	LogLevel string

	// LogOutput specifies where logs are written. Defaults to os.Stdout.
	LogOutput io.Writer

	// AdditionalFields are included in every log entry.
	AdditionalFields Fields

	// SensitiveKeys overrides the default redaction key set for log fields.
	SensitiveKeys []string

	// Registerer receives the metric collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Provider manages the lifecycle of observability components.
// Each component gets its own Logger and Metrics instances.
type Provider interface {
	// Logger returns the Logger for a component. Repeated calls with the
	// same name return the same instance.
	Logger(component string) Logger

	// Metrics returns the Metrics for a component. Repeated calls with the
	// same name return the same instance.
	Metrics(component string) Metrics

	// Close flushes buffered log entries and releases resources.
	Close() error
}
