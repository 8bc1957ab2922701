package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var Logger zerolog.Logger

type sessionKey struct{}

// Init initializes the global logger
func Init(serviceName string, isDevelopment bool) {
	InitWithWriter(serviceName, isDevelopment, os.Stdout)
}

// InitWithWriter initializes the global logger on an explicit writer
func InitWithWriter(serviceName string, isDevelopment bool, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := out
	if isDevelopment {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	Logger = zerolog.New(output).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	log.Logger = Logger
}

// ContextWithSession tags ctx so log lines carry the console session id
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// WithContext returns a logger with trace and session information from context
func WithContext(ctx context.Context) *zerolog.Logger {
	lc := Logger.With()

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		lc = lc.
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String())
	}
	if sid, ok := ctx.Value(sessionKey{}).(string); ok && sid != "" {
		lc = lc.Str("session_id", sid)
	}

	logger := lc.Logger()
	return &logger
}

// Info logs at info level with context
func Info(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Info()
}

// Error logs at error level with context
func Error(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Error()
}

// Debug logs at debug level with context
func Debug(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Debug()
}

// Warn logs at warn level with context
func Warn(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Warn()
}

// Fatal logs at fatal level with context
func Fatal(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Fatal()
}

// SetLevel sets the global log level; unknown names fall back to info
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
