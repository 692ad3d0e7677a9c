package config

import (
	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
)

// ServiceConfig contains the fields every tokenkeeper process needs. Config
// embeds it so the keys stay at the top level of the file.
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ApplyDefaults applies default values to the base configuration.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "tokenkeeper"
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the base configuration fields.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return errors.Configuration("name", "name is required")
	}
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return errors.Configuration("environment",
			"environment must be one of [development, staging, production] (got: "+c.Environment+")")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Configuration("logging", err.Error()).WithCause(err)
	}
	return nil
}
