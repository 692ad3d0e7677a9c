package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/tokenkeeper/logger"
)

// MeterConfig configures the OTLP metric exporter.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	// Interval is the export interval. Zero keeps the SDK default.
	Interval time.Duration
}

// InitMeter installs a periodic OTLP meter provider as the global provider.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric names.
const (
	MetricLogins            = "tokenkeeper.logins"
	MetricRefreshes         = "tokenkeeper.refreshes"
	MetricFailures          = "tokenkeeper.failures"
	MetricOperationDuration = "tokenkeeper.operation.duration"
)

// Metrics holds the token lifecycle instruments. A nil *Metrics records nothing.
type Metrics struct {
	logins    metric.Int64Counter
	refreshes metric.Int64Counter
	failures  metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	logins, err := meter.Int64Counter(MetricLogins,
		metric.WithDescription("Completed login flows by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricLogins, err)
	}

	refreshes, err := meter.Int64Counter(MetricRefreshes,
		metric.WithDescription("Token refresh attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRefreshes, err)
	}

	failures, err := meter.Int64Counter(MetricFailures,
		metric.WithDescription("Failed operations by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricFailures, err)
	}

	duration, err := meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("Duration of lifecycle operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricOperationDuration, err)
	}

	return &Metrics{
		logins:    logins,
		refreshes: refreshes,
		failures:  failures,
		duration:  duration,
	}, nil
}

// RecordLogin counts one finished login flow.
func (m *Metrics) RecordLogin(ctx context.Context, provider, authMethod, status string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("auth_method", authMethod),
		attribute.String("status", status),
	))
}

// RecordRefresh counts one refresh.
func (m *Metrics) RecordRefresh(ctx context.Context, provider, authMethod, status string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("auth_method", authMethod),
		attribute.String("status", status),
	))
}

// RecordFailure counts a failed operation by error code.
func (m *Metrics) RecordFailure(ctx context.Context, operation, code string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("code", code),
	))
}

// RecordDuration records how long an operation took.
func (m *Metrics) RecordDuration(ctx context.Context, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
