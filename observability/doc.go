/*
Package observability provides structured logging and metrics collection for
the handler pipeline, the provider adapters and the infrastructure packages
(publishers, repositories).

# Architecture

	Provider (manages instances per component)
	    ├── Logger (zap, JSON encoded, redacted fields)
	    └── Metrics (Prometheus compatible)

Each component (handler, adapter, publisher, repository) gets its own
logger and metrics instance. Components depend on the interfaces in the
types package, so tests substitute the mocks package.

# Usage

Initialize the provider once at process startup, outside the handler:

	provider := observability.NewProvider(&observability.Config{
	    ServiceName: "orders",
	    Environment: "production",
	    LogLevel:    "info",
	    AdditionalFields: observability.Fields{
	        "version": "1.4.0",
	    },
	})
	defer provider.Close()

	log := provider.Logger("handler")
	metrics := provider.Metrics("handler")

	metrics.StartOperation("invoke")
	defer metrics.EndOperation("invoke")

	log.Info(ctx, "invocation started", observability.Fields{
	    "source": "sqs",
	    "records": 10,
	})

# Context Integration

The logger extracts these context values when present (keys from the
types package):
  - trace_id: Distributed tracing identifier
  - request_id: Provider request identifier
  - platform: Provider name ("lambda", "azure", "http")

# Confidentiality

Field values whose keys match the sensitive key set (password, token,
authorization, ...) are replaced with "[REDACTED]"; keys starting with "_"
are dropped. Config.SensitiveKeys overrides the key set.

# Metrics Details

  - fnkit_{component}_processed_total: Counter with labels [status, type]
  - fnkit_{component}_errors_total: Counter with labels [error_type, operation]
  - fnkit_{component}_duration_seconds: Histogram with label [operation]
  - fnkit_{component}_payload_size_bytes: Histogram with label [source]
  - fnkit_{component}_in_progress: Gauge with label [operation]

Collectors register on Config.Registerer, or the default registry when nil.

# Testing

	mockProvider := new(mocks.MockProvider)
	mockLogger := new(mocks.MockLogger)
	mockProvider.On("Logger", "handler").Return(mockLogger)
	mockLogger.On("Info", mock.Anything, "invocation started", mock.Anything).Return()
*/
package observability
