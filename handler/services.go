package handler

import (
	"context"
	"errors"
	"net/http"

	"fnkit/container"
	apperrors "fnkit/errors"
)

// ContainerFactory produces the service container of one invocation.
type ContainerFactory func(ctx context.Context, inv *Invocation) (*container.Container, error)

// FromRegistry returns a ContainerFactory creating a fresh container from
// registry for every invocation.
func FromRegistry(registry *container.Registry) ContainerFactory {
	return func(context.Context, *Invocation) (*container.Container, error) {
		return registry.New(), nil
	}
}

// WithContainer calls factory once per invocation and attaches the result to
// inv.Services. Services inside the container are constructed lazily. A
// factory failure aborts the chain with CONTAINER_ERROR before next runs.
func WithContainer(factory ContainerFactory) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			c, err := factory(ctx, inv)
			if err == nil && c == nil {
				err = errors.New("container factory returned nil")
			}
			if err != nil {
				return Response{}, apperrors.Application(apperrors.CodeContainer,
					"failed to create service container", http.StatusInternalServerError).WithCause(err)
			}

			inv.Services = c
			return next(ctx, inv)
		}
	}
}

// Service resolves a typed service from the invocation's container.
func Service[T any](ctx context.Context, inv *Invocation, name string) (T, error) {
	return container.Get[T](ctx, inv.Services, name)
}
