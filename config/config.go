// Package config loads the host configuration file of the dentdelion binary.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dentdelion-dev/dentdelion/application/validation"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
)

// Config is the host configuration. The zero value is not usable; start
// from Default.
type Config struct {
	PluginDir        string            `yaml:"plugin_dir" validate:"required"`
	LogLevel         string            `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsAddr      string            `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	Plugins          map[string]Values `yaml:"plugins"`
	CacheSize        int               `yaml:"cache_size" validate:"gte=1,lte=4096"`
	MaxParallelLoads int               `yaml:"max_parallel_loads" validate:"gte=1,lte=256"`
	WatchDebounce    time.Duration     `yaml:"watch_debounce" validate:"gte=0"`
	Watch            bool              `yaml:"watch"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		PluginDir:        ".dentdelion/plugins",
		LogLevel:         "info",
		CacheSize:        64,
		MaxParallelLoads: 4,
		WatchDebounce:    250 * time.Millisecond,
		Plugins:          map[string]Values{},
	}
}

// Load reads a YAML file over the defaults. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domainerrors.IoError{Op: "read", Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("decode: %w", err)}
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]Values{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validation.NewStructValidator().Validate(c)
}

// PluginConfig returns the initial host state for a plugin; nil when none
// is configured.
func (c *Config) PluginConfig(name string) Values {
	return c.Plugins[name]
}

// PluginConfigs returns every configured plugin's initial host state, in
// the shape the plugin manager takes.
func (c *Config) PluginConfigs() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.Plugins))
	for name, v := range c.Plugins {
		out[name] = v
	}
	return out
}
