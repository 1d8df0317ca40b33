package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kemicky/forage/pkg/forageable"
	"github.com/kemicky/forage/pkg/stores"
	"github.com/kemicky/forage/pkg/tasks"
	"github.com/kemicky/forage/pkg/telemetry"
)

// Environment variables that override file settings.
const (
	EnvDatabasePath = "FORAGE_DB"
	EnvLogLevel     = "FORAGE_LOG_LEVEL"
)

// DefaultDatabasePath is used when neither the file nor the environment name
// a database.
const DefaultDatabasePath = "forage.db"

// Config is the complete forage configuration.
type Config struct {
	Database  stores.Config     `yaml:"database"`
	Tasks     tasks.Config      `yaml:"tasks"`
	Telemetry *telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: stores.Config{
			Path:            DefaultDatabasePath,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			WatchExternal:   true,
		},
		Tasks:     tasks.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		// An empty "telemetry:" key decodes to nil.
		if cfg.Telemetry == nil {
			cfg.Telemetry = telemetry.DefaultConfig()
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Telemetry.Logging.Level = v
	}
}

// Validate checks field rules on every section.
func (c *Config) Validate() error {
	if c.Telemetry == nil {
		return errors.New("telemetry section is required")
	}
	if err := forageable.Validator().Struct(c); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
