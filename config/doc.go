// Package config loads tokenkeeper configuration.
//
// Values come from a YAML file, an optional .env file and TOKENKEEPER_*
// environment variables, in increasing order of precedence. Nested keys are
// joined with underscores:
//
//	TOKENKEEPER_STORE_DIR=/var/lib/tokens
//	TOKENKEEPER_SSO_REGION=eu-west-1
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("tokenkeeper.yml"))
package config
