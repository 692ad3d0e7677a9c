package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbukum/tokenkeeper/callback"
	"github.com/kbukum/tokenkeeper/encryption"
	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/observability"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/resilience"
	"github.com/kbukum/tokenkeeper/social"
	"github.com/kbukum/tokenkeeper/sso"
	"github.com/kbukum/tokenkeeper/storage"
	"github.com/kbukum/tokenkeeper/validation"
	"github.com/kbukum/tokenkeeper/version"
)

// DefaultTokenDir is where the local store writes records.
const DefaultTokenDir = "~/.tokenkeeper/tokens"

// Config is the complete tokenkeeper configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Store     StoreConfig          `yaml:"store" mapstructure:"store"`
	SSO       sso.Config           `yaml:"sso" mapstructure:"sso"`
	Social    social.Config        `yaml:"social" mapstructure:"social"`
	Callback  CallbackConfig       `yaml:"callback" mapstructure:"callback"`
	Lifecycle LifecycleConfig      `yaml:"lifecycle" mapstructure:"lifecycle"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// StoreConfig selects the storage backend and secret sealing.
type StoreConfig struct {
	storage.Config `yaml:",inline" mapstructure:",squash"`

	// SealSecrets encrypts refresh tokens and client secrets at rest.
	SealSecrets   bool   `yaml:"seal_secrets" mapstructure:"seal_secrets"`
	EncryptionKey string `yaml:"encryption_key" mapstructure:"encryption_key" json:"-"`
	Algorithm     string `yaml:"algorithm" mapstructure:"algorithm"`
}

// CallbackConfig overrides the loopback receiver settings.
type CallbackConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	Host    string        `yaml:"host" mapstructure:"host"`
	Ports   []int         `yaml:"ports" mapstructure:"ports" validate:"dive,min=1,max=65535"`
}

// LifecycleConfig tunes login and refresh behavior.
type LifecycleConfig struct {
	MaxExchangeAttempts int                    `yaml:"max_exchange_attempts" mapstructure:"max_exchange_attempts" validate:"gte=0"`
	WatchInterval       time.Duration          `yaml:"watch_interval" mapstructure:"watch_interval" validate:"gte=0"`
	RefreshRetry        resilience.RetryConfig `yaml:"refresh_retry" mapstructure:"refresh_retry"`
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Store.ApplyDefaults()

	if c.SSO.UserAgent == "" {
		c.SSO.UserAgent = version.UserAgent()
	}
	c.SSO.ApplyDefaults()
	if c.Social.UserAgent == "" {
		c.Social.UserAgent = version.UserAgent()
	}
	c.Social.ApplyDefaults()

	if c.Lifecycle.MaxExchangeAttempts == 0 {
		c.Lifecycle.MaxExchangeAttempts = 3
	}
	if c.Lifecycle.WatchInterval == 0 {
		c.Lifecycle.WatchInterval = time.Minute
	}
	if c.Lifecycle.RefreshRetry.MaxAttempts == 0 {
		d := resilience.DefaultRetryConfig()
		c.Lifecycle.RefreshRetry.MaxAttempts = d.MaxAttempts
		if c.Lifecycle.RefreshRetry.InitialBackoff == 0 {
			c.Lifecycle.RefreshRetry.InitialBackoff = d.InitialBackoff
		}
		if c.Lifecycle.RefreshRetry.Jitter == 0 {
			c.Lifecycle.RefreshRetry.Jitter = d.Jitter
		}
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}
	c.Telemetry.ApplyDefaults()
}

// Validate checks struct tags first, then each section's own rules.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.SSO.Validate(); err != nil {
		return err
	}
	if c.Lifecycle.RefreshRetry.Jitter < 0 || c.Lifecycle.RefreshRetry.Jitter > 1 {
		return errors.Configuration("lifecycle.refresh_retry.jitter", "jitter must be between 0 and 1")
	}
	return c.Telemetry.Validate()
}

// ApplyDefaults defaults the backend and resolves the local directory.
func (c *StoreConfig) ApplyDefaults() {
	c.Config.ApplyDefaults()
	if c.Provider == storage.ProviderLocal {
		if c.Dir == "" {
			c.Dir = DefaultTokenDir
		}
		c.Dir = ResolveDir(c.Dir)
	}
}

// Validate checks the backend and, when sealing, the key and algorithm.
func (c *StoreConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if !c.SealSecrets {
		return nil
	}
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return errors.Configuration("store.encryption_key", "encryption_key is required when seal_secrets is enabled")
	}
	_, err := encryption.ParseAlgorithm(c.Algorithm)
	return err
}

// Sealer returns the configured sealer, or nil when sealing is off.
func (c *StoreConfig) Sealer() (encryption.Sealer, error) {
	if !c.SealSecrets {
		return nil, nil
	}
	alg, err := encryption.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return nil, err
	}
	return encryption.New(c.EncryptionKey, alg)
}

// For returns the receiver configuration for one auth method.
func (c CallbackConfig) For(method provider.AuthMethod) callback.Config {
	cfg := callback.IdCConfig()
	if method == provider.AuthMethodSocial {
		cfg = callback.SocialConfig()
	}
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if len(c.Ports) > 0 {
		cfg.Ports = append([]int(nil), c.Ports...)
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	return cfg
}

// ResolveDir expands a leading "~" and makes dir absolute. It returns dir
// unchanged when neither is possible.
func ResolveDir(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return dir
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
