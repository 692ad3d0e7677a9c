package storage

import (
	"github.com/kbukum/tokenkeeper/errors"
)

// Provider constants for supported storage backends.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// Config holds storage configuration.
type Config struct {
	// Provider selects the storage backend: "local" or "s3".
	Provider string `mapstructure:"provider" json:"provider" validate:"omitempty,oneof=local s3"`

	// Dir is the root directory for local storage. It must be absolute once resolved.
	Dir string `mapstructure:"dir" json:"dir"`

	// S3 holds bucket settings for the s3 provider.
	S3 S3Config `mapstructure:"s3" json:"s3"`
}

// S3Config holds S3 settings.
type S3Config struct {
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"-"`
	PathStyle bool   `mapstructure:"path_style" json:"path_style"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}

// Validate checks that the configuration is valid for the selected provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
		if c.Dir == "" {
			return errors.Configuration("store.dir", "storage: dir is required for local provider")
		}
	case ProviderS3:
		if c.S3.Bucket == "" {
			return errors.Configuration("store.s3.bucket", "storage: bucket is required for s3 provider")
		}
	default:
		return errors.Configuration("store.provider", "storage: unsupported provider "+c.Provider)
	}
	return nil
}
