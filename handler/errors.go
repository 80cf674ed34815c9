package handler

import (
	"context"
	"errors"

	apperrors "fnkit/errors"
	"fnkit/observability"
	"fnkit/observability/types"
	"fnkit/redact"
)

// ErrorLoggingMiddleware logs errors returned by the inner chain and returns
// them unchanged.
func ErrorLoggingMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			resp, err := next(ctx, inv)
			if err == nil {
				return resp, nil
			}

			fields := types.Fields{
				"event_id":   inv.Event.ID,
				"error_code": apperrors.CodeOf(err),
				"status":     apperrors.StatusOf(err),
			}
			if appErr, ok := apperrors.As(err); ok {
				fields["error_kind"] = string(appErr.Kind)
				if len(appErr.Data) > 0 {
					fields["error_data"] = appErr.Data
				}
				if len(appErr.Failures) > 0 {
					fields["failures"] = appErr.Failures
				}
			}
			if errors.Is(err, context.DeadlineExceeded) {
				fields["deadline_exceeded"] = true
			}

			provider.Logger("handler").Error(ctx, "Invocation returned error", err, fields)
			return resp, err
		}
	}
}

// ErrorResponseMiddleware recovers errors from the inner chain into a
// response carrying the error's status and a redacted error body. Place it
// only in HTTP-facing chains: batch adapters need the error itself.
func ErrorResponseMiddleware(redactor *redact.Redactor) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			resp, err := next(ctx, inv)
			if err != nil {
				return ErrorToResponse(err, redactor), nil
			}
			return resp, nil
		}
	}
}
