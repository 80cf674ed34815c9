package handler

import (
	"context"

	apperrors "fnkit/errors"
	"fnkit/validation"
)

// ValidateEvent checks the event body against schema. On failure it returns
// a validation error listing every violation and does not call next. On
// success the invocation is passed on unmodified.
func ValidateEvent(schema validation.Schema) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			if violations := schema.Check(inv.Event.Body); len(violations) > 0 {
				return Response{}, apperrors.Validation(violations).WithData("schema", schema.Name())
			}
			return next(ctx, inv)
		}
	}
}
