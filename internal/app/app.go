// Package app assembles the sample order service from configuration. Every
// example binary builds one App and hands its handler factory to a platform
// adapter.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"fnkit/awsclient"
	"fnkit/config"
	"fnkit/handler"
	"fnkit/health"
	"fnkit/internal/orders"
	"fnkit/messaging"
	"fnkit/observability"
	"fnkit/observability/types"
	"fnkit/principal"
	"fnkit/redact"
	"fnkit/repository"
)

// App holds the initialized infrastructure of one process.
type App struct {
	Config    *config.Config
	Provider  observability.Provider
	Metrics   *prometheus.Registry
	Redactor  *redact.Redactor
	Publisher messaging.Publisher
	Orders    *orders.Service
	Checkers  []health.Checker

	verifier *principal.JWTVerifier
	backend  repository.Backend
	logger   types.Logger
}

// New initializes observability, AWS clients, the publisher and the
// repository described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	registry := prometheus.NewRegistry()
	provider := observability.NewProvider(&observability.Config{
		ServiceName:   cfg.ServiceName,
		Environment:   cfg.Environment,
		LogLevel:      cfg.LogLevel,
		SensitiveKeys: cfg.Redaction.Keys,
		Registerer:    registry,
	})
	logger := provider.Logger("app")

	logger.Info(ctx, "Starting application", types.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.Version,
		"environment": cfg.Environment,
		"publisher":   cfg.Publisher.Kind,
		"repository":  cfg.Repository.Kind,
	})

	awsCfg, err := awsclient.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	publisher, err := messaging.New(ctx, cfg.Publisher, awsCfg, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	backend, err := repository.NewBackend(cfg.Repository, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	store := repository.New[orders.Order](backend, repository.WithObservability(provider))

	a := &App{
		Config:    cfg,
		Provider:  provider,
		Metrics:   registry,
		Redactor:  NewRedactor(cfg.Redaction),
		Publisher: publisher,
		Orders:    orders.NewService(store, publisher, provider),
		Checkers:  []health.Checker{publisher, store},
		backend:   backend,
		logger:    logger,
	}

	if cfg.AuthEnabled() {
		a.verifier, err = principal.NewJWTVerifier(principal.JWTConfig{
			SigningMethod: cfg.Auth.SigningMethod,
			SecretKey:     cfg.Auth.JWTSecret,
			PublicKey:     cfg.Auth.JWTPublicKey,
			Issuer:        cfg.Auth.Issuer,
			Audience:      cfg.Auth.Audience,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
	}

	return a, nil
}

// NewRedactor builds the redactor described by cfg.
func NewRedactor(cfg config.RedactionConfig) *redact.Redactor {
	var opts []redact.Option
	if len(cfg.Keys) > 0 {
		opts = append(opts, redact.WithKeys(cfg.Keys...))
	}
	if cfg.Marker != "" {
		opts = append(opts, redact.WithMarker(cfg.Marker))
	}
	if cfg.InternalPrefix != "" {
		opts = append(opts, redact.WithInternalPrefix(cfg.InternalPrefix))
	}
	return redact.New(opts...)
}

// Factory returns a handler factory for the order routes with error
// logging, the service container and principal extraction installed. With
// auth configured the principal comes from a verified bearer token,
// otherwise from the provider's authorizer claims.
func (a *App) Factory() *handler.Factory {
	principalMiddleware := handler.PrincipalFromRequestAuthorizer(false)
	if a.verifier != nil {
		principalMiddleware = handler.PrincipalFromBearerToken(a.verifier, false)
	}

	return handler.NewFactory(orders.Routes(), a.Provider).
		WithHandlerConfig(a.Config.Handler).
		WithRedactor(a.Redactor).
		Use(
			handler.ErrorLoggingMiddleware(a.Provider),
			handler.WithContainer(handler.FromRegistry(orders.Registry(a.Orders))),
			principalMiddleware,
		)
}

// Close releases publisher and repository connections and flushes
// observability output.
func (a *App) Close() error {
	var errs []error
	for _, res := range []any{a.Publisher, a.backend} {
		if c, ok := res.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	errs = append(errs, a.Provider.Close())
	return errors.Join(errs...)
}
