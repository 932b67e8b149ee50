// Package config loads the client configuration: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/syntrix-go/internal/local/pebblecache"
	"github.com/syntrixbase/syntrix-go/internal/remote/wsremote"
)

// Config holds the client configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Remote  RemoteConfig  `yaml:"remote"`
	Cache   CacheConfig   `yaml:"cache"`
}

// RemoteConfig configures the backend connection.
type RemoteConfig struct {
	wsremote.Config `yaml:",inline"`

	// Token is the access token presented on connect. Usually injected
	// via SYNTRIX_TOKEN rather than written to the file.
	Token string `yaml:"token"`
}

// CacheConfig selects the document cache backing.
type CacheConfig struct {
	// Persistent enables the Pebble-backed cache; off means in-memory.
	Persistent bool `yaml:"persistent"`

	Pebble pebblecache.Config `yaml:",inline"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: DefaultLoggingConfig(),
		Remote: RemoteConfig{
			Config: wsremote.Config{Endpoint: "ws://localhost:8080/v1/realtime"},
		},
		Cache: CacheConfig{Pebble: pebblecache.DefaultConfig()},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SYNTRIX_ENDPOINT"); v != "" {
		c.Remote.Endpoint = v
	}
	if v := os.Getenv("SYNTRIX_TENANT"); v != "" {
		c.Remote.Tenant = v
	}
	if v := os.Getenv("SYNTRIX_TOKEN"); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv("SYNTRIX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration shape.
func (c *Config) Validate() error {
	if c.Remote.Endpoint == "" {
		return fmt.Errorf("remote.endpoint is required")
	}
	if c.Cache.Persistent && c.Cache.Pebble.Path == "" {
		return fmt.Errorf("cache.path is required when the persistent cache is enabled")
	}
	return nil
}
