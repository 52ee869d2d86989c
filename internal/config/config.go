// Package config loads project-local settings for the catalog engine.
// Settings live in .prism/config.yaml; a .env file in the project root may
// override the environment knobs (PRISM_DB, PRISM_LOG_LEVEL, PRISM_LOG_FORMAT).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the per-project config file, next to the catalog DB.
const DefaultConfigPath = ".prism/config.yaml"

// Config holds the tunable policy knobs of the catalog engine.
type Config struct {
	// ConfidenceThreshold splits verdicts into VERIFIED (>=) and
	// NEEDS_REVIEW (<). Range 0..1.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// MaxAttempts bounds queue retries before an item goes terminally FAILED.
	MaxAttempts int `yaml:"max_attempts"`
	// DefaultPriority is assigned to queue items created by scans.
	DefaultPriority int `yaml:"default_priority"`
	// InvalidateCallers marks direct callers of a changed function STALE and
	// enqueues them with reason DEPENDENCY_CHANGED. Off by default.
	InvalidateCallers bool `yaml:"invalidate_callers"`
	// IgnorePatterns extends the scanner's built-in ignore list.
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ConfidenceThreshold: 0.70,
		MaxAttempts:         3,
		DefaultPriority:     100,
	}
}

// Load reads path, layering the file's values over the defaults. A missing
// file is not an error: the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %v outside [0, 1]", c.ConfidenceThreshold)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts %d must be at least 1", c.MaxAttempts)
	}
	return nil
}

// Write persists the config as YAML, creating the parent directory.
func (c Config) Write(path string) error {
	if err := c.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadEnv pulls a .env file into the process environment if one exists.
// Existing variables win over file entries, so exported settings are never
// silently overridden.
func LoadEnv() {
	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load()
}
