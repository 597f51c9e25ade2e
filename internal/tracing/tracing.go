package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds tracing configuration for one bridge process. Every
// span the engine emits (log reads, recovery, flush) shares this one
// tracer, so there is exactly one Config for the process, not one per
// component the way a multi-flow runtime would need.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// defaultEndpoint is used when OTEL_EXPORTER_OTLP_ENDPOINT is unset.
const defaultEndpoint = "localhost:4317"

// GetConfig reads tracing configuration from the environment.
//
//   - COUNTER_BRIDGE_OTEL_ENABLED must be "true" to enable tracing at all.
//   - OTEL_EXPORTER_OTLP_ENDPOINT overrides the OTLP/gRPC collector address.
//   - COUNTER_BRIDGE_OTEL_SAMPLE_RATIO, in [0,1], overrides the fraction of
//     traces sampled; unset or unparsable defaults to 1.0 (sample everything,
//     appropriate for a single-log consumer's comparatively low span volume).
func GetConfig(serviceName string) Config {
	enabled := strings.ToLower(os.Getenv("COUNTER_BRIDGE_OTEL_ENABLED")) == "true"

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	ratio := 1.0
	if raw := os.Getenv("COUNTER_BRIDGE_OTEL_SAMPLE_RATIO"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
			ratio = parsed
		}
	}

	return Config{
		Enabled:     enabled,
		Endpoint:    endpoint,
		ServiceName: serviceName,
		SampleRatio: ratio,
	}
}

// Initialize sets up OpenTelemetry tracing for the process and returns
// a tracer, a shutdown function to call during graceful shutdown, and
// any setup error. When cfg.Enabled is false it returns a no-op tracer
// so the engine's span calls stay unconditional either way.
func Initialize(cfg Config, logger *slog.Logger) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled, using no-op tracer")
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	logger.Info("initializing tracing", "endpoint", cfg.Endpoint, "service", cfg.ServiceName, "sampleRatio", cfg.SampleRatio)

	exporter, err := newExporter(cfg.Endpoint)
	if err != nil {
		return nil, nil, err
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized successfully")

	tracer := tp.Tracer(cfg.ServiceName)
	shutdown := func(ctx context.Context) error {
		logger.Info("shutting down tracer provider")
		return tp.Shutdown(ctx)
	}

	return tracer, shutdown, nil
}

func newExporter(endpoint string) (sdktrace.SpanExporter, error) {
	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// Propagator returns the global text map propagator for trace context.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}
