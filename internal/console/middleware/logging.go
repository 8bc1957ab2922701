package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/product-console/pkg/logger"
)

// StructuredLoggingMiddleware logs one line per console request
func StructuredLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		statusCode := responseStatus(c, err)

		traceID := "no-trace"
		if span := trace.SpanFromContext(c.UserContext()); span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		}

		log := logger.WithContext(c.UserContext())
		logEvent := log.Info()
		if statusCode >= 500 {
			logEvent = log.Error()
		} else if statusCode >= 400 {
			logEvent = log.Warn()
		}

		if err != nil {
			logEvent = logEvent.Err(err)
		}

		logEvent.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", statusCode).
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Int("response_size", len(c.Response().Body())).
			Str("ip", c.IP()).
			Str("trace_id", traceID).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Msg("Console request completed")

		return err
	}
}

// responseStatus is the status the client will see. When a handler returned
// an error the error handler has not run yet, so it is derived from err.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
