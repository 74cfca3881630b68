package telemetry

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tourguide/internal/telemetry"

// OTelConfig holds the OpenTelemetry exporter settings.
type OTelConfig struct {
	Endpoint string `env:"TOURGUIDE_OTEL_ENDPOINT"`
	Enabled  bool   `env:"TOURGUIDE_OTEL_ENABLED" envDefault:"true"`
}

// LoadOTelConfig reads [OTelConfig] from the environment.
func LoadOTelConfig() (OTelConfig, error) {
	var cfg OTelConfig
	if err := env.Parse(&cfg); err != nil {
		return OTelConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when the endpoint is empty or Enabled is false, Setup
// returns a no-op shutdown function and no global provider is registered.
// The returned shutdown function flushes pending spans and should be
// deferred by the caller.
func Setup(ctx context.Context, serviceName string, cfg OTelConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// OTelSink records each event as a zero-length span named after the
// category, with the tag as the "tour.event" attribute.
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink returns a sink using tp. A nil tp uses the global provider.
func NewOTelSink(tp trace.TracerProvider) *OTelSink {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelSink{tracer: tp.Tracer(tracerName)}
}

// Track implements [Sink].
func (o *OTelSink) Track(category, event string) {
	_, span := o.tracer.Start(context.Background(), category,
		trace.WithAttributes(
			attribute.String("tour.category", category),
			attribute.String("tour.event", event),
		),
	)
	span.End()
}
