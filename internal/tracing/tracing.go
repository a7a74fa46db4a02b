// Package tracing provides OpenTelemetry spans around pipeline stages.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
)

// ServiceName identifies this process in exported traces.
const ServiceName = "cloudsentry"

// Stage span names.
const (
	SpanIngest  = "ingest"
	SpanEncode  = "encode"
	SpanTrain   = "train"
	SpanPredict = "predict"
	SpanTriage  = "triage"
	SpanExport  = "export"
)

var tracer trace.Tracer

// Config selects the OTLP endpoint and sampler.
type Config struct {
	Endpoint     string
	SamplingRate float64
}

// ConfigFromRun maps the tracing section of the run configuration.
func ConfigFromRun(cfg *config.Config) Config {
	return Config{
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	}
}

// Init installs an OTLP/HTTP tracer provider. With no endpoint tracing is
// disabled and the returned shutdown is a no-op.
func Init(cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		tracer = nil
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exp, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRate)),
	)
	Use(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Use installs tp as the global provider and derives the stage tracer from it.
func Use(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(ServiceName)
}

// Tracer returns the stage tracer, or a no-op tracer when tracing is off.
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer(ServiceName)
	}
	return tracer
}

// StartSpan starts a stage span tagged with the run ID.
func StartSpan(ctx context.Context, name, runID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String("run.id", runID)}, attrs...)
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// TraceIDFromContext returns the trace ID of the active span, if any.
func TraceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}
