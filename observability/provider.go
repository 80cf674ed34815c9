package observability

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"fnkit/observability/logger"
	"fnkit/observability/metrics"
	"fnkit/observability/types"
	"fnkit/redact"
)

// Logger is a type alias for the Logger interface from the types package.
type Logger = types.Logger

// Metrics is a type alias for the Metrics interface from the types package.
type Metrics = types.Metrics

// Fields is a type alias for structured logging fields.
type Fields = types.Fields

// Config is a type alias for the observability configuration.
type Config = types.Config

// Provider is a type alias for the Provider interface from the types package.
type Provider = types.Provider

// MetricsPrefix prefixes every metric name created by the provider.
const MetricsPrefix = "fnkit"

// DefaultProvider implements the Provider interface.
// It manages Logger and Metrics instances per component, creating them
// lazily on first access.
type DefaultProvider struct {
	config   *Config
	redactor *redact.Redactor
	loggers  map[string]*logger.ZapLogger
	metrics  map[string]Metrics
	mu       sync.RWMutex
}

// NewProvider creates a new observability provider with the given
// configuration. If LogOutput is not specified it defaults to os.Stdout.
//
// Example:
//
//	provider := observability.NewProvider(&observability.Config{
//		ServiceName: "orders",
//		Environment: "production",
//		LogLevel:    "info",
//	})
//	log := provider.Logger("handler")
func NewProvider(config *Config) Provider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}

	var opts []redact.Option
	if len(config.SensitiveKeys) > 0 {
		opts = append(opts, redact.WithKeys(config.SensitiveKeys...))
	}

	return &DefaultProvider{
		config:   config,
		redactor: redact.New(opts...),
		loggers:  make(map[string]*logger.ZapLogger),
		metrics:  make(map[string]Metrics),
	}
}

// Logger returns the Logger for the specified component.
// The returned logger includes the provider's AdditionalFields, a
// "component" field and a service name of "{ServiceName}.{component}".
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	l := logger.New(logger.Options{
		ServiceName: fmt.Sprintf("%s.%s", p.config.ServiceName, component),
		Environment: p.config.Environment,
		Level:       p.config.LogLevel,
		Output:      p.config.LogOutput,
		Fields:      fields,
		Redactor:    p.redactor,
	})
	p.loggers[component] = l

	return l
}

// Metrics returns the Metrics for the specified component, named
// "fnkit_{component}_*".
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if m, exists := p.metrics[component]; exists {
		return m
	}

	m := metrics.NewWithRegisterer(MetricsPrefix+"_"+component, p.config.Registerer)
	p.metrics[component] = m

	return m
}

// Close flushes every logger and closes LogOutput if it implements
// io.Closer, except for os.Stdout and os.Stderr.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.loggers {
		// stdout sync fails on some platforms; nothing to recover
		_ = l.Sync()
	}

	if closer, ok := p.config.LogOutput.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}

	return nil
}

// NewNopProvider returns a provider whose loggers discard output and whose
// metrics register on a private registry.
func NewNopProvider() Provider {
	return NewProvider(&Config{
		ServiceName: "nop",
		LogLevel:    "error",
		LogOutput:   io.Discard,
		Registerer:  prometheus.NewRegistry(),
	})
}
