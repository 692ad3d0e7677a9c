package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/tokenkeeper/logger"
)

// TracerConfig configures the OTLP trace exporter.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP HTTP host:port, e.g. "localhost:4318".
	Endpoint   string
	Insecure   bool
	SampleRate float64
}

// InitTracer installs a batching OTLP tracer provider as the global provider.
// The caller shuts it down on exit.
func InitTracer(ctx context.Context, config TracerConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracer initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"sample_rate", config.SampleRate,
	))
	return tp, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// newResource merges service metadata into the SDK defaults. The attributes are
// schemaless so the merge never conflicts with the SDK's schema URL.
func newResource(serviceName, serviceVersion string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a span on the tokenkeeper tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, name, opts...)
}

// SetSpanError records err on the span in ctx and marks it failed.
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Span names.
const (
	SpanLogin       = "tokenkeeper.login"
	SpanRefresh     = "tokenkeeper.refresh"
	SpanEnsureFresh = "tokenkeeper.ensure_fresh"
	SpanDelete      = "tokenkeeper.delete"
	SpanWatch       = "tokenkeeper.watch.tick"
)

// Attribute keys.
const (
	AttrProvider   = "tokenkeeper.provider"
	AttrAuthMethod = "tokenkeeper.auth_method"
	AttrTokenID    = "tokenkeeper.token_id"
	AttrOperation  = "tokenkeeper.operation"
	AttrState      = "tokenkeeper.state"
	AttrErrorCode  = "error.code"
	AttrAttempt    = "tokenkeeper.attempt"
)

// ProviderAttrs returns the provider and auth method attributes.
func ProviderAttrs(provider, authMethod string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProvider, provider),
		attribute.String(AttrAuthMethod, authMethod),
	}
}
