package handler

import (
	"os"

	"fnkit/config"
	"fnkit/observability"
	"fnkit/redact"
)

// Platform identifiers.
const (
	PlatformLambda = "lambda"
	PlatformAzure  = "azure"
	PlatformHTTP   = "http"
)

// Factory creates handlers with the default middleware stack. This is the
// main entry point for wiring a terminal handler in cmd/ packages.
type Factory struct {
	terminal   HandlerFunc
	provider   observability.Provider
	handlerCfg config.HandlerConfig
	redactor   *redact.Redactor
	extra      []Middleware
	mapErrors  bool
}

// NewFactory creates a new handler factory with sensible defaults.
func NewFactory(terminal HandlerFunc, provider observability.Provider) *Factory {
	return &Factory{
		terminal:   terminal,
		provider:   provider,
		handlerCfg: config.DefaultHandlerConfig(),
		redactor:   redact.New(),
	}
}

// WithHandlerConfig sets custom handler configuration.
func (f *Factory) WithHandlerConfig(cfg config.HandlerConfig) *Factory {
	f.handlerCfg = cfg
	return f
}

// WithRedactor sets the redactor used for error bodies.
func (f *Factory) WithRedactor(r *redact.Redactor) *Factory {
	f.redactor = r
	return f
}

// WithErrorResponses maps errors to responses inside the chain. Leave it off
// for batch event sources: their adapters need the aggregate error.
func (f *Factory) WithErrorResponses() *Factory {
	f.mapErrors = true
	return f
}

// Use appends application middlewares after the default stack.
func (f *Factory) Use(middleware ...Middleware) *Factory {
	f.extra = append(f.extra, middleware...)
	return f
}

// Create creates a handler for the detected or configured platform.
func (f *Factory) Create() *Handler {
	cfg := f.handlerCfg
	if cfg.Platform == "" || cfg.Platform == "auto" {
		cfg.Platform = DetectPlatform()
	}

	handler := NewHandler(f.terminal, f.provider, &cfg)
	f.applyDefaultMiddleware(handler)
	handler.Use(f.extra...)

	return handler
}

// CreateHTTP creates a handler for the local HTTP server.
func (f *Factory) CreateHTTP() *Handler {
	f.handlerCfg.Platform = PlatformHTTP
	return f.Create()
}

// CreateLambda creates a handler for AWS Lambda.
func (f *Factory) CreateLambda() *Handler {
	f.handlerCfg.Platform = PlatformLambda
	return f.Create()
}

// CreateAzure creates a handler for an Azure Functions custom handler.
func (f *Factory) CreateAzure() *Handler {
	f.handlerCfg.Platform = PlatformAzure
	return f.Create()
}

// applyDefaultMiddleware adds the standard middleware stack. Recovery sits
// inside logging and metrics so recovered panics are observed as errors.
func (f *Factory) applyDefaultMiddleware(handler *Handler) {
	if f.mapErrors {
		handler.Use(ErrorResponseMiddleware(f.redactor))
	}

	if f.handlerCfg.EnableTracing {
		handler.Use(TracingMiddleware())
	}

	handler.Use(LoggingMiddleware(f.provider))

	if f.handlerCfg.EnableMetrics {
		handler.Use(MetricsMiddleware(f.provider))
	}

	handler.Use(RecoveryMiddleware(f.provider))
}

// DetectPlatform attempts to detect the runtime platform from environment.
func DetectPlatform() string {
	if config.IsLambda() {
		return PlatformLambda
	}
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return PlatformLambda
	}
	if config.IsAzureFunctions() {
		return PlatformAzure
	}
	return PlatformHTTP
}
