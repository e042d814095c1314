// Package config loads the Gateway's runtime configuration from a YAML
// file with environment-variable overrides.
//
// Priority: defaults -> YAML file -> environment variables.
//
//	cfg, err := config.NewLoader().WithConfigPath("gateway.yaml").Load()
package config
