package handler

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"fnkit/config"
	apperrors "fnkit/errors"
	"fnkit/observability"
	"fnkit/observability/types"
)

// Middleware wraps the remainder of the chain. It may short-circuit by not
// calling next, mutate the invocation, or transform the result and error
// returned by next. next may be called at most once per invocation.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the function signature for handling invocations.
// This is the core processing function that middlewares wrap.
type HandlerFunc func(ctx context.Context, inv *Invocation) (Response, error)

// Invoker runs an invocation through a pipeline. Adapters depend on it.
type Invoker interface {
	Handle(ctx context.Context, inv *Invocation) (Response, error)
}

// Handler wraps a terminal handler with a middleware chain.
type Handler struct {
	terminal    HandlerFunc
	obs         observability.Provider
	middlewares []Middleware
	config      *config.HandlerConfig
}

// NewHandler creates a new handler with the given terminal function and
// configuration. This is the low-level constructor; most users should use
// the Factory instead.
func NewHandler(terminal HandlerFunc, provider observability.Provider, cfg *config.HandlerConfig) *Handler {
	if cfg == nil {
		defaults := config.DefaultHandlerConfig()
		cfg = &defaults
	}
	return &Handler{
		terminal:    terminal,
		obs:         provider,
		config:      cfg,
		middlewares: []Middleware{},
	}
}

// Use adds middleware to the handler chain.
// Middleware is executed in the order it's added.
func (h *Handler) Use(middleware ...Middleware) {
	h.middlewares = append(h.middlewares, middleware...)
}

// Handle processes an invocation through the middleware chain and the
// terminal handler.
func (h *Handler) Handle(ctx context.Context, inv *Invocation) (Response, error) {
	if inv == nil {
		return Response{}, apperrors.Application(apperrors.CodeMalformedEvent, "invocation is nil", http.StatusBadRequest)
	}

	chain := Build(h.middlewares, h.terminal)

	ctx = context.WithValue(ctx, types.RequestIDKey, inv.Provider.RequestID)
	ctx = context.WithValue(ctx, types.PlatformKey, h.platform(inv))

	return chain(ctx, inv)
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Provider returns the observability provider.
func (h *Handler) Provider() observability.Provider {
	return h.obs
}

func (h *Handler) platform(inv *Invocation) string {
	if inv.Provider.Platform != "" {
		return inv.Provider.Platform
	}
	return h.config.Platform
}

// chainID distinguishes the guards of separately built chains.
type chainID struct{ _ byte }

type nextKey struct {
	chain *chainID
	depth int
}

// Build composes middlewares around terminal. The first middleware is the
// outermost layer: it runs first on the way in and last on the way out. The
// next function handed to each middleware fails with NEXT_CALLED_TWICE on a
// second call within the same invocation, without running the inner chain
// again.
func Build(middlewares []Middleware, terminal HandlerFunc) HandlerFunc {
	middlewares = slices.Clone(middlewares)
	id := &chainID{}

	handler := terminal
	// Apply middleware in reverse order
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](guardNext(id, i, handler))
	}
	return handler
}

func guardNext(id *chainID, depth int, next HandlerFunc) HandlerFunc {
	key := nextKey{chain: id, depth: depth}
	return func(ctx context.Context, inv *Invocation) (Response, error) {
		if !inv.markNext(key) {
			return Response{}, apperrors.Application(apperrors.CodeNextCalledTwice,
				fmt.Sprintf("middleware at position %d called next more than once", depth),
				http.StatusInternalServerError)
		}
		return next(ctx, inv)
	}
}
