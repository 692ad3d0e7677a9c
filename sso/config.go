package sso

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/httpclient"
	"github.com/kbukum/tokenkeeper/validation"
)

const (
	// DefaultTimeout bounds registration and token calls.
	DefaultTimeout = 30 * time.Second
	// DefaultClientName is the clientName sent on registration.
	DefaultClientName = "tokenkeeper"
	defaultRegion     = "us-east-1"
)

// Config configures the SSO-OIDC client.
type Config struct {
	// Region selects https://oidc.{region}.amazonaws.com.
	Region string `yaml:"region" mapstructure:"region"`
	// BaseURL overrides the regional endpoint. A "{region}" placeholder is expanded.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// ClientName is the default clientName for registrations.
	ClientName string `yaml:"client_name" mapstructure:"client_name"`
	// Scopes are the default registration and authorize scopes.
	Scopes []string `yaml:"scopes" mapstructure:"scopes"`
	// Timeout bounds every call. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// UserAgent is sent with every request.
	UserAgent string `yaml:"-" mapstructure:"-"`
	// TLS configures a custom CA.
	TLS *httpclient.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://oidc.{region}.amazonaws.com"
	}
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Endpoint returns the base URL for the configured region.
func (c *Config) Endpoint() string {
	return strings.ReplaceAll(c.BaseURL, "{region}", c.Region)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !validation.RegionPattern.MatchString(c.Region) {
		return errors.Configuration("region", fmt.Sprintf("sso: invalid region %q", c.Region))
	}
	return nil
}
