package callback

import (
	"fmt"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
)

const (
	// DefaultPath is the redirect path registered with both backends.
	DefaultPath = "/oauth/callback"
	// DefaultTimeout bounds how long Wait blocks for the browser.
	DefaultTimeout = 5 * time.Minute
)

// SocialPorts are the redirect ports the social backend accepts, tried in order.
var SocialPorts = []int{49153, 50153, 51153, 52153, 53153, 4649, 6588, 9091, 8008, 3128}

// Config holds callback server configuration.
type Config struct {
	// Host is the interface to bind and the host written into the redirect URI.
	Host string `mapstructure:"host" json:"host"`
	// Ports are tried in order. Empty means a random free port.
	Ports []int `mapstructure:"ports" json:"ports"`
	// Path is the callback route.
	Path string `mapstructure:"path" json:"path"`
	// Timeout bounds Wait.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// IdCConfig returns the configuration used for SSO-OIDC logins.
func IdCConfig() Config {
	return Config{Host: "127.0.0.1", Path: DefaultPath, Timeout: DefaultTimeout}
}

// SocialConfig returns the configuration used for social logins.
func SocialConfig() Config {
	return Config{Host: "localhost", Ports: append([]int(nil), SocialPorts...), Path: DefaultPath, Timeout: DefaultTimeout}
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	for _, p := range c.Ports {
		if p <= 0 || p > 65535 {
			return errors.Configuration("callback.ports", fmt.Sprintf("callback port must be between 1 and 65535 (got: %d)", p))
		}
	}
	if c.Timeout < 0 {
		return errors.Configuration("callback.timeout", "callback timeout must be non-negative")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return errors.Configuration("callback.path", "callback path must start with /")
	}
	return nil
}
