// Package config provides configuration loading and management for otn.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/connectivity"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
)

// Config represents the complete otn configuration
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Checks ChecksConfig `yaml:"checks"`
	Review ReviewConfig `yaml:"review"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig configures connectivity inference
type EngineConfig struct {
	// Lambda is the largest gap at which two objects still touch
	Lambda float64 `yaml:"lambda"`
	// GridCellSize is the spatial index cell edge
	GridCellSize float64 `yaml:"grid_cell_size"`
	// Incremental enables relinking only the nets around edits
	Incremental bool `yaml:"incremental"`
	// IncrementalLimit is the largest edit batch handled incrementally
	IncrementalLimit int `yaml:"incremental_limit"`
}

// ChecksConfig configures the rule check battery
type ChecksConfig struct {
	// RulesFile is an optional rule battery applied over the built-ins
	RulesFile string `yaml:"rules_file"`
	// CacheSize is the number of memoised net check results (0 disables)
	CacheSize int `yaml:"cache_size"`
	// Disabled lists check keys to turn off
	Disabled []string `yaml:"disabled,omitempty"`
}

// ReviewConfig configures where review decisions are kept
type ReviewConfig struct {
	// StateFile is the decisions file; empty means <layout>.review.yaml
	StateFile string `yaml:"state_file"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	ec := connectivity.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			Lambda:           ec.Lambda,
			GridCellSize:     ec.GridCellSize,
			Incremental:      ec.Incremental,
			IncrementalLimit: ec.IncrementalLimit,
		},
		Checks: ChecksConfig{
			CacheSize: erc.DefaultCacheSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Engine.Lambda < 0 {
		return fmt.Errorf("engine.lambda must not be negative")
	}
	if c.Engine.GridCellSize < 0 {
		return fmt.Errorf("engine.grid_cell_size must not be negative")
	}
	if c.Engine.IncrementalLimit < 0 {
		return fmt.Errorf("engine.incremental_limit must not be negative")
	}
	if c.Checks.CacheSize < 0 {
		return fmt.Errorf("checks.cache_size must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// ConnectivityConfig converts the engine section for the connectivity engine.
func (c *Config) ConnectivityConfig() *connectivity.Config {
	return &connectivity.Config{
		Lambda:           c.Engine.Lambda,
		GridCellSize:     c.Engine.GridCellSize,
		Incremental:      c.Engine.Incremental,
		IncrementalLimit: c.Engine.IncrementalLimit,
	}
}

// StatePath returns the review decisions file for a layout.
func (c *Config) StatePath(layout string) string {
	if c.Review.StateFile != "" {
		return c.Review.StateFile
	}
	return strings.TrimSuffix(layout, filepath.Ext(layout)) + ".review.yaml"
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := config.MergeFile(path); err != nil {
		return nil, err
	}
	return config, nil
}

// MergeFile decodes a YAML file over c. Keys absent from the file keep
// their current values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). Booleans cannot be unset this way; use MergeFile.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Engine.Lambda != 0 {
		c.Engine.Lambda = other.Engine.Lambda
	}
	if other.Engine.GridCellSize != 0 {
		c.Engine.GridCellSize = other.Engine.GridCellSize
	}
	if other.Engine.Incremental {
		c.Engine.Incremental = true
	}
	if other.Engine.IncrementalLimit != 0 {
		c.Engine.IncrementalLimit = other.Engine.IncrementalLimit
	}

	if other.Checks.RulesFile != "" {
		c.Checks.RulesFile = other.Checks.RulesFile
	}
	if other.Checks.CacheSize != 0 {
		c.Checks.CacheSize = other.Checks.CacheSize
	}
	if len(other.Checks.Disabled) > 0 {
		c.Checks.Disabled = other.Checks.Disabled
	}

	if other.Review.StateFile != "" {
		c.Review.StateFile = other.Review.StateFile
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
