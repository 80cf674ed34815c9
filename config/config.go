// Package config loads process-wide configuration from the environment and
// optional .env files. Load builds a fresh Config on every call; there is no
// package-level instance.
package config

import (
	"fmt"
)

// Load loads .env files, parses configuration from environment variables,
// applies defaults and validates the result.
// Call it once at process startup, outside the handler.
func Load() (*Config, error) {
	if err := loadEnvFiles("."); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := parse()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this for process initialization where errors are fatal.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
