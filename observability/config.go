package observability

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
)

const instrumentationName = "github.com/kbukum/tokenkeeper"

// Config is the telemetry section of the application config.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	ServiceName string        `mapstructure:"service_name"`
	Insecure    bool          `mapstructure:"insecure"`
	SampleRate  float64       `mapstructure:"sample_rate"`
	Interval    time.Duration `mapstructure:"interval"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.ServiceName == "" {
		c.ServiceName = "tokenkeeper"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Validate checks an enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errors.Configuration("telemetry.sample_rate", "must be between 0 and 1")
	}
	if c.Interval < 0 {
		return errors.Configuration("telemetry.interval", "must not be negative")
	}
	return nil
}

// Telemetry owns the providers created by Init.
type Telemetry struct {
	Metrics  *Metrics
	shutdown []func(context.Context) error
}

// Init installs the global tracer and meter providers when cfg is enabled and
// builds the domain instruments. A disabled config yields no-op telemetry.
func Init(ctx context.Context, cfg Config, serviceVersion string) (*Telemetry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Telemetry{}
	if cfg.Enabled {
		tp, err := InitTracer(ctx, TracerConfig{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: serviceVersion,
			Endpoint:       cfg.Endpoint,
			Insecure:       cfg.Insecure,
			SampleRate:     cfg.SampleRate,
		})
		if err != nil {
			return nil, err
		}
		t.shutdown = append(t.shutdown, tp.Shutdown)

		mp, err := InitMeter(ctx, MeterConfig{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: serviceVersion,
			Endpoint:       cfg.Endpoint,
			Insecure:       cfg.Insecure,
			Interval:       cfg.Interval,
		})
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		t.shutdown = append(t.shutdown, mp.Shutdown)
	} else {
		logger.Debug("telemetry disabled")
	}

	m, err := NewMetrics(Meter(instrumentationName))
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, errors.Internal("create metric instruments", err)
	}
	t.Metrics = m
	return t, nil
}

// Shutdown flushes and stops the providers. It is safe on a nil Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		if err := t.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return stderrors.Join(errs...)
}
