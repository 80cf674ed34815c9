// Package logger implements types.Logger on top of zap. Entries are JSON
// encoded with a consistent field structure; sensitive field values are
// redacted before encoding.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fnkit/observability/types"
	"fnkit/redact"
)

// ParseLevel converts a level name to a zap level. Unrecognized levels
// default to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ZapLogger implements types.Logger with a zap core.
type ZapLogger struct {
	zl       *zap.Logger
	redactor *redact.Redactor
}

// Options configures a ZapLogger.
type Options struct {
	ServiceName string
	Environment string
	Level       string
	Output      io.Writer
	Fields      types.Fields
	Redactor    *redact.Redactor
}

// New creates a JSON logger writing to opts.Output (os.Stdout when nil).
//
// Example:
//
//	log := logger.New(logger.Options{
//		ServiceName: "orders.handler",
//		Environment: "production",
//		Level:       "info",
//	})
func New(opts Options) *ZapLogger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	redactor := opts.Redactor
	if redactor == nil {
		redactor = redact.New()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(output),
		zap.NewAtomicLevelAt(ParseLevel(opts.Level)),
	)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	zl := zap.New(core).With(
		zap.String("service", opts.ServiceName),
		zap.String("env", opts.Environment),
		zap.String("hostname", hostname),
	)

	l := &ZapLogger{zl: zl, redactor: redactor}
	if len(opts.Fields) > 0 {
		l.zl = l.zl.With(l.zapFields(opts.Fields)...)
	}
	return l
}

// NewNop returns a logger that discards everything.
func NewNop() *ZapLogger {
	return &ZapLogger{zl: zap.NewNop(), redactor: redact.New()}
}

// Zap exposes the underlying zap logger.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.zl
}

// Info logs an informational message at INFO level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, zapcore.InfoLevel, msg, nil, fields)
}

// Error logs an error message at ERROR level including the error text and
// its Go type.
func (l *ZapLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	l.log(ctx, zapcore.ErrorLevel, msg, err, fields)
}

// Warn logs a warning message at WARN level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, zapcore.WarnLevel, msg, nil, fields)
}

// Debug logs a debug message at DEBUG level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, zapcore.DebugLevel, msg, nil, fields)
}

// WithFields returns a child logger with additional persistent fields.
func (l *ZapLogger) WithFields(fields types.Fields) types.Logger {
	return &ZapLogger{
		zl:       l.zl.With(l.zapFields(fields)...),
		redactor: l.redactor,
	}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.zl.Sync()
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, err error, fields types.Fields) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}

	zf := l.contextFields(ctx)
	if err != nil {
		zf = append(zf,
			zap.String("error", err.Error()),
			zap.String("error_type", fmt.Sprintf("%T", err)),
		)
	}
	zf = append(zf, l.zapFields(fields)...)
	ce.Write(zf...)
}

func (l *ZapLogger) contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var zf []zap.Field
	for _, key := range []types.ContextKey{types.TraceIDKey, types.RequestIDKey, types.PlatformKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			zf = append(zf, zap.String(string(key), v))
		}
	}
	return zf
}

func (l *ZapLogger) zapFields(fields types.Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	clean := l.redactor.Map(fields)
	zf := make([]zap.Field, 0, len(clean))
	for k, v := range clean {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}
