package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware opens a server span per console request. Trace context
// sent by the page is continued so backend calls join the same trace.
func TracingMiddleware(serviceName string) fiber.Handler {
	tracer := otel.Tracer(serviceName)

	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier{}
		c.Request().Header.VisitAll(func(key, value []byte) {
			carrier.Set(string(key), string(value))
		})
		parent := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		route := c.Method() + " " + c.Path()
		ctx, span := tracer.Start(
			parent,
			route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.url", c.OriginalURL()),
				attribute.String("http.target", c.Path()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
				attribute.String("http.client_ip", c.IP()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-Id", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// route templates are only known once the router matched
		if r := c.Route(); r != nil && r.Path != "" {
			span.SetName(c.Method() + " " + r.Path)
			span.SetAttributes(attribute.String("http.route", r.Path))
		}

		statusCode := responseStatus(c, err)
		span.SetAttributes(
			attribute.Int("http.status_code", statusCode),
			attribute.Int("http.response.size", len(c.Response().Body())),
		)
		if id := SessionID(c); id != "" {
			span.SetAttributes(attribute.String("console.session_id", id))
		}

		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case statusCode >= 500:
			span.SetStatus(codes.Error, "Server Error")
		case statusCode >= 400:
			span.SetStatus(codes.Error, "Client Error")
		default:
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
