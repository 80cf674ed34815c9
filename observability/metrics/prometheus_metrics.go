// Package metrics provides Prometheus-compatible metrics collection for the
// handler pipeline and its infrastructure components.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using the Prometheus
// client library. All metric names are prefixed with the sanitized
// component name.
type PrometheusMetrics struct {
	// serviceName is used as a prefix for all metric names
	serviceName string

	// processedTotal tracks processed operations by status and type
	processedTotal *prometheus.CounterVec
	// errorsTotal tracks errors by error type and operation
	errorsTotal *prometheus.CounterVec
	// durationSeconds tracks operation duration with default buckets
	durationSeconds *prometheus.HistogramVec
	// payloadSizeBytes tracks event payload sizes with exponential buckets
	payloadSizeBytes *prometheus.HistogramVec
	// inProgress tracks the number of operations currently in progress
	inProgress *prometheus.GaugeVec
}

// New creates a PrometheusMetrics instance registered on the default
// registerer.
func New(serviceName string) *PrometheusMetrics {
	return NewWithRegisterer(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a PrometheusMetrics instance and registers its
// collectors on reg.
//
// Pre-configured metrics:
//   - {name}_processed_total: Counter for successful and failed operations
//   - {name}_errors_total: Counter for errors by type and operation
//   - {name}_duration_seconds: Histogram for operation durations
//   - {name}_payload_size_bytes: Histogram for event payload sizes
//   - {name}_in_progress: Gauge for concurrent operations
//
// Panics:
//   - If metrics registration fails (e.g., duplicate metric names)
func NewWithRegisterer(serviceName string, reg prometheus.Registerer) *PrometheusMetrics {
	name := sanitize(serviceName)
	m := &PrometheusMetrics{serviceName: name}

	m.processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_total", name),
			Help: fmt.Sprintf("Total processed operations by %s", name),
		},
		[]string{"status", "type"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_errors_total", name),
			Help: fmt.Sprintf("Total errors in %s", name),
		},
		[]string{"error_type", "operation"},
	)

	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_duration_seconds", name),
			Help:    fmt.Sprintf("Operation duration in %s", name),
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// 256B up to 4MB, the upper bound for most event sources
	m.payloadSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_payload_size_bytes", name),
			Help:    fmt.Sprintf("Event payload sizes handled by %s", name),
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"source"},
	)

	m.inProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_in_progress", name),
			Help: fmt.Sprintf("Operations in progress in %s", name),
		},
		[]string{"operation"},
	)

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.payloadSizeBytes,
		m.inProgress,
	)

	return m
}

// RecordSuccess increments the success counter for an operation type.
//
// Example:
//
//	metrics.RecordSuccess("invoke")
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both the processed counter (status="error") and
// the detailed error counter.
//
// Example:
//
//	metrics.RecordError("invoke", "VALIDATION_ERROR")
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration records the duration of an operation in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordPayloadSize records the size of an event payload in bytes.
func (m *PrometheusMetrics) RecordPayloadSize(source string, bytes int64) {
	m.payloadSizeBytes.WithLabelValues(source).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge for an operation.
//
// Example:
//
//	metrics.StartOperation("invoke")
//	defer metrics.EndOperation("invoke")
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge for an operation.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}

// sanitize turns a component name into a valid metric name prefix.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
