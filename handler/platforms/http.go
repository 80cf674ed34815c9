package platforms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fnkit/config"
	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/health"
	"fnkit/redact"
)

// healthPaths are answered by the health checkers instead of the pipeline.
var healthPaths = []string{
	"/health",
	"/healthz",
	"/ready",
	"/readyz",
	"/live",
	"/livez",
}

// HTTPAdapter adapts the handler for standard HTTP servers.
// This adapter can be used for local development, Kubernetes deployments,
// or any standard HTTP server environment.
type HTTPAdapter struct {
	handler        handler.Invoker
	config         config.HTTPConfig
	maxRequestSize int64
	redactor       *redact.Redactor
	checkers       []health.Checker
	gatherer       prometheus.Gatherer
	routes         []route
	router         chi.Router
}

type route struct {
	method string
	path   string
	fn     handler.HandlerFunc
}

// HTTPOption configures an HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithServerConfig sets the listen address and timeouts used by Serve.
func WithServerConfig(cfg config.HTTPConfig) HTTPOption {
	return func(a *HTTPAdapter) { a.config = cfg }
}

// WithMaxRequestSize limits request bodies. Larger bodies are rejected
// with 413.
func WithMaxRequestSize(n int64) HTTPOption {
	return func(a *HTTPAdapter) { a.maxRequestSize = n }
}

// WithHealthCheckers sets the checkers run by the health endpoints.
func WithHealthCheckers(checkers ...health.Checker) HTTPOption {
	return func(a *HTTPAdapter) { a.checkers = append(a.checkers, checkers...) }
}

// WithMetrics exposes the gatherer's metrics on /metrics.
func WithMetrics(g prometheus.Gatherer) HTTPOption {
	return func(a *HTTPAdapter) { a.gatherer = g }
}

// WithRoute mounts fn on method and path outside the pipeline, e.g. an
// OpenAPI document.
func WithRoute(method, path string, fn handler.HandlerFunc) HTTPOption {
	return func(a *HTTPAdapter) { a.routes = append(a.routes, route{method, path, fn}) }
}

// WithHTTPRedactor sets the redactor used for error bodies.
func WithHTTPRedactor(r *redact.Redactor) HTTPOption {
	return func(a *HTTPAdapter) { a.redactor = r }
}

// NewHTTPAdapter creates a new HTTP adapter with the provided handler.
func NewHTTPAdapter(h handler.Invoker, opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{
		handler:        h,
		config:         config.DefaultHTTPConfig(),
		maxRequestSize: config.DefaultHandlerConfig().MaxRequestSize,
		redactor:       redact.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	healthHandler := a.serveFunc(health.Handler(a.checkers...))
	for _, path := range healthPaths {
		r.Get(path, healthHandler)
	}
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	for _, rt := range a.routes {
		r.Method(rt.method, rt.path, a.serveFunc(rt.fn))
	}
	r.HandleFunc("/*", a.serveFunc(a.handler.Handle))
	a.router = r

	return a
}

// ServeHTTP implements the http.Handler interface, allowing the adapter
// to be used with any standard HTTP server or router.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Serve starts an HTTP server with the adapter and shuts it down when ctx
// is cancelled.
func (a *HTTPAdapter) Serve(ctx context.Context) error {
	return serve(ctx, a.config.Addr, a, a.config.ReadTimeout, a.config.WriteTimeout)
}

func (a *HTTPAdapter) serveFunc(fn handler.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := firstNonEmpty(extractRequestID(r), newID())

		body, err := a.readBody(w, r)
		if err != nil {
			a.writeResponse(w, requestID, ToHTTP(handler.Response{}, err, a.redactor))
			return
		}

		event := buildEvent(r, requestID, body)
		pc := handler.ProviderContext{
			RequestID: requestID,
			Platform:  handler.PlatformHTTP,
			Raw:       r,
		}
		if deadline, ok := r.Context().Deadline(); ok {
			pc.Deadline = deadline
		}

		resp, err := fn(r.Context(), handler.NewInvocation(event, pc))
		a.writeResponse(w, requestID, ToHTTP(resp, err, a.redactor))
	}
}

// readBody reads the request body within the configured size limit.
func (a *HTTPAdapter) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	if a.maxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxRequestSize)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Application(apperrors.CodeMalformedEvent,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		}
		return nil, malformed("failed to read request body", err)
	}
	return body, nil
}

// buildEvent creates a normalized event from an HTTP request.
func buildEvent(r *http.Request, requestID string, body []byte) *handler.Event {
	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	params := make(map[string]string)
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key != "*" {
				params[key] = rctx.URLParams.Values[i]
			}
		}
	}

	metadata := map[string]string{
		"http_host":   r.Host,
		"remote_addr": r.RemoteAddr,
	}
	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		metadata["trace_id"] = traceID
	}

	return &handler.Event{
		ID:             requestID,
		Source:         handler.SourceHTTP,
		Type:           extractRequestType(r),
		Method:         r.Method,
		Path:           r.URL.Path,
		Headers:        lowerHeaderNames(r.Header),
		Query:          query,
		PathParameters: params,
		Body:           body,
		Metadata:       metadata,
		Timestamp:      time.Now().UTC(),
	}
}

// extractRequestID attempts to extract request ID from headers
func extractRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Correlation-ID", "Request-ID"} {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	return ""
}

// extractRequestType determines the event type from the HTTP request
func extractRequestType(r *http.Request) string {
	// First check for explicit type header
	if reqType := r.Header.Get("X-Request-Type"); reqType != "" {
		return reqType
	}

	// Take the first path segment as type
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path != "" {
		if idx := strings.Index(path, "/"); idx > 0 {
			return path[:idx]
		}
		return path
	}

	return strings.ToLower(r.Method)
}

// writeResponse writes the handler response as HTTP response
func (a *HTTPAdapter) writeResponse(w http.ResponseWriter, requestID string, resp handler.Response) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(resp.Status())
	_, _ = w.Write(resp.Body)
}

func lowerHeaderNames(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ",")
	}
	return out
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, addr string, h http.Handler, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
