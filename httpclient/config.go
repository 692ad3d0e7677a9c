package httpclient

import (
	"time"

	"github.com/kbukum/tokenkeeper/errors"
)

const (
	defaultTimeout = 30 * time.Second
	// defaultMaxErrorBody bounds how much of a failed response is kept for diagnostics.
	defaultMaxErrorBody = 4096
	// defaultMaxResponseBody bounds how much of any response is read.
	defaultMaxResponseBody = 1 << 20
)

// Config configures the HTTP adapter.
type Config struct {
	// Name labels the backend in errors and logs.
	Name string `yaml:"name" mapstructure:"name"`

	// BaseURL is the base URL prepended to all request paths.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds every request. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent with every request when set.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	// TLS configures a custom CA or client certificate.
	TLS *TLSConfig `yaml:"tls" mapstructure:"tls"`

	// Headers are default headers applied to all requests.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// MaxErrorBody caps the bytes of a non-2xx body kept in the error. Defaults to 4 KiB.
	MaxErrorBody int64 `yaml:"max_error_body" mapstructure:"max_error_body"`

	// MaxResponseBody caps the bytes read from any response. Defaults to 1 MiB.
	MaxResponseBody int64 `yaml:"max_response_body" mapstructure:"max_response_body"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxErrorBody <= 0 {
		c.MaxErrorBody = defaultMaxErrorBody
	}
	if c.MaxResponseBody <= 0 {
		c.MaxResponseBody = defaultMaxResponseBody
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.Configuration("timeout", "httpclient: timeout must be positive")
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return errors.Configuration("tls", err.Error())
		}
	}
	return nil
}
