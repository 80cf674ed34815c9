package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	apperrors "fnkit/errors"
	"fnkit/observability"
	"fnkit/observability/types"
)

// LoggingMiddleware adds structured logging to invocation processing
func LoggingMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			logger := provider.Logger("handler")

			platform, _ := ctx.Value(types.PlatformKey).(string)

			requestLogger := logger.WithFields(types.Fields{
				"event_id": inv.Event.ID,
				"source":   inv.Event.Source,
				"type":     inv.Event.Type,
				"function": inv.Provider.FunctionName,
				"platform": platform,
			})

			requestLogger.Info(ctx, "Processing invocation", types.Fields{
				"payload_size": len(inv.Event.Body),
				"records":      len(inv.Event.Records),
			})

			start := time.Now()
			resp, err := next(ctx, inv)
			duration := time.Since(start)

			switch {
			case err != nil:
				requestLogger.Error(ctx, "Invocation failed with error", err, types.Fields{
					"error_code":  apperrors.CodeOf(err),
					"status":      apperrors.StatusOf(err),
					"duration_ms": duration.Milliseconds(),
				})
			case resp.Status() >= http.StatusInternalServerError:
				requestLogger.Warn(ctx, "Invocation completed with server error status", types.Fields{
					"status":      resp.Status(),
					"duration_ms": duration.Milliseconds(),
				})
			default:
				requestLogger.Info(ctx, "Invocation completed successfully", types.Fields{
					"status":      resp.Status(),
					"duration_ms": duration.Milliseconds(),
				})
			}

			resp.Duration = duration
			return resp, err
		}
	}
}

// MetricsMiddleware records metrics for invocation processing
func MetricsMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			metrics := provider.Metrics("handler")

			operation := inv.Provider.FunctionName
			if operation == "" {
				operation = "invoke"
			}

			metrics.StartOperation(operation)
			defer metrics.EndOperation(operation)

			if inv.Event.Source != "" {
				metrics.RecordPayloadSize(inv.Event.Source, int64(len(inv.Event.Body)))
			}

			start := time.Now()
			resp, err := next(ctx, inv)
			metrics.RecordDuration(operation, time.Since(start).Seconds())

			switch {
			case err != nil:
				metrics.RecordError(operation, apperrors.CodeOf(err))
			case resp.Status() >= http.StatusInternalServerError:
				metrics.RecordError(operation, fmt.Sprintf("status_%d", resp.Status()))
			default:
				metrics.RecordSuccess(operation)
			}

			return resp, err
		}
	}
}

// RecoveryMiddleware converts panics in the inner chain into an
// INTERNAL_ERROR. Panic details are logged, never returned to clients.
func RecoveryMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (resp Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					panicErr := fmt.Errorf("panic recovered: %v", r)

					provider.Logger("handler").Error(ctx, "Panic recovered", panicErr, types.Fields{
						"event_id": inv.Event.ID,
						"function": inv.Provider.FunctionName,
						"stack":    string(debug.Stack()),
					})
					provider.Metrics("handler").RecordError("panic", "panic_recovered")

					resp = Response{}
					err = apperrors.Internal("An internal error occurred", panicErr)
				}
			}()

			return next(ctx, inv)
		}
	}
}

// TracingMiddleware ensures each invocation has a trace ID for correlation
// across services. The id is taken from the incoming headers or metadata
// when present.
func TracingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			traceID := extractTraceID(inv.Event)
			if traceID == "" {
				traceID = uuid.New().String()
			}
			spanID := uuid.New().String()

			ctx = context.WithValue(ctx, types.TraceIDKey, traceID)

			// visible to handlers that publish downstream events
			inv.Event.SetMetadata("trace_id", traceID)
			inv.Event.SetMetadata("span_id", spanID)

			resp, err := next(ctx, inv)

			if resp.Metadata == nil {
				resp.Metadata = make(map[string]string)
			}
			resp.Metadata["trace_id"] = traceID
			resp.Metadata["span_id"] = spanID
			if err == nil {
				resp.SetHeader("X-Trace-Id", traceID)
			}

			return resp, err
		}
	}
}

// extractTraceID looks for a trace id in the common header and metadata keys
func extractTraceID(event *Event) string {
	traceKeys := []string{
		"trace_id",
		"x-trace-id",
		"x-amzn-trace-id",
		"traceparent",
		"x-b3-traceid",
		"x-request-id",
		"correlation-id",
	}

	for _, key := range traceKeys {
		if val := event.Header(key); val != "" {
			return val
		}
		if val, ok := event.Metadata[key]; ok && val != "" {
			return val
		}
	}

	return ""
}
