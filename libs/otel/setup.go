package otelx

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"github.com/asif-mahmud/medisched/libs/config"
)

// Setup installs the global propagators and, unless OTEL_ENABLED=false, a
// tracer provider exporting over OTLP gRPC. The returned function flushes and
// stops the provider; call it during graceful shutdown.
//
// Env: OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT (host:port),
// OTEL_SAMPLING_RATIO (0..1, parent-based).
func Setup(ctx context.Context, service string) (func(context.Context) error, error) {
	// Propagators are set even when export is off, so trace headers still
	// flow through this service to the ones that do export.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	switch config.String("OTEL_ENABLED", "true") {
	case "false", "0":
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func sampleRatio() float64 {
	if f, err := strconv.ParseFloat(config.String("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return 1.0
}
