package config

import (
	"fmt"
	"strings"
	"time"

	"fnkit/redact"
)

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	env := strings.ToLower(c.Environment)

	if c.Publisher.Source == "" {
		c.Publisher.Source = fmt.Sprintf("%s.%s", c.ServiceName, env)
	}
	if c.Redaction.Marker == "" {
		c.Redaction.Marker = redact.DefaultMarker
	}
	if c.Redaction.InternalPrefix == "" {
		c.Redaction.InternalPrefix = redact.DefaultInternalPrefix
	}
	if len(c.Redaction.Keys) == 0 {
		c.Redaction.Keys = append([]string(nil), redact.DefaultKeys...)
	}

	if c.IsProduction() {
		// Enable all observability features in production
		c.Handler.EnableMetrics = true
		c.Handler.EnableTracing = true
	}

	if c.IsLocal() {
		// No collector to ship spans to locally
		c.Handler.EnableTracing = false
	}
}

// DefaultHandlerConfig returns sensible defaults for handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxRequestSize: 6 * 1024 * 1024, // Lambda synchronous payload limit
		EnableHealth:   true,
		EnableMetrics:  true,
		EnableTracing:  true,
		Platform:       "", // Auto-detect
	}
}

// DefaultLambdaConfig returns sensible defaults for Lambda configuration
func DefaultLambdaConfig() LambdaConfig {
	return LambdaConfig{
		EnablePartialBatchFailure: true,
		AutoBase64Decode:          true,
	}
}

// DefaultHTTPConfig returns sensible defaults for the local HTTP server
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// DefaultConfig returns a complete configuration with sensible defaults.
// Useful for tests or as a starting point to override specific parts.
func DefaultConfig() *Config {
	cfg := &Config{
		Environment: "development",
		ServiceName: "fnkit-service",
		LogLevel:    "info",
		Version:     "0.0.0",

		AWS:     AWSConfig{Region: "us-east-1", MaxRetries: 3},
		HTTP:    DefaultHTTPConfig(),
		Lambda:  DefaultLambdaConfig(),
		Handler: DefaultHandlerConfig(),
		Publisher: PublisherConfig{
			Kind:               "memory",
			EventBusName:       "default",
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Repository: RepositoryConfig{Kind: "memory"},
		Auth:       AuthConfig{SigningMethod: "HS256"},
	}
	cfg.applyDefaults()
	return cfg
}
