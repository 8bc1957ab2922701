package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/product-console/pkg/logger"
)

// Config controls the Jaeger exporter and sampling
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	SampleRatio    float64
}

// InitTracer initializes OpenTelemetry tracer with Jaeger exporter.
// An empty endpoint leaves the global no-op provider in place.
func InitTracer(cfg Config) (trace.TracerProvider, error) {
	// Propagator is installed even without an exporter so trace context still
	// flows from the browser to the backend and from push events to spans.
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	if cfg.Endpoint == "" {
		logger.Logger.Info().Msg("Tracing exporter disabled (no endpoint)")
		return otel.GetTracerProvider(), nil
	}

	exporter, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = "1.0.0"
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	logger.Logger.Info().
		Str("service", cfg.ServiceName).
		Str("endpoint", cfg.Endpoint).
		Msg("Tracer initialized")
	return tp, nil
}

// Shutdown gracefully shuts down the tracer
func Shutdown(ctx context.Context, tp trace.TracerProvider) error {
	if provider, ok := tp.(*sdktrace.TracerProvider); ok {
		return provider.Shutdown(ctx)
	}
	return nil
}
