// Package config holds the keepbot process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all keepbot configuration.
type Config struct {
	// Account credentials for the owner account.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// DatabasePath is the SQLite file backing the preference and session stores.
	DatabasePath string `yaml:"database_path"`

	// BridgeURL is the base URL of the platform bridge gateway.
	BridgeURL string `yaml:"bridge_url"`

	// MaxTries bounds login attempts made by the platform client.
	MaxTries int `yaml:"max_tries"`

	// Listen selects whether the event loop runs after bootstrap.
	// False makes the process a one-shot maintenance invocation.
	Listen bool `yaml:"listen"`

	// CorrectTimeout bounds each corrective call issued on drift,
	// as a duration string ("15s").
	CorrectTimeout string `yaml:"correct_timeout"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:   "db.sqlite3",
		BridgeURL:      "http://127.0.0.1:8450",
		MaxTries:       1,
		Listen:         true,
		CorrectTimeout: "15s",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file, layers it over the defaults, and applies
// environment overrides. A missing file is not an error; defaults plus
// environment are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values so credentials
// can stay out of config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KEEPBOT_EMAIL"); v != "" {
		c.Email = v
	}
	if v := os.Getenv("KEEPBOT_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("KEEPBOT_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("KEEPBOT_BRIDGE_URL"); v != "" {
		c.BridgeURL = v
	}
	if v := os.Getenv("KEEPBOT_LISTEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Listen = b
		}
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("email is required (config or KEEPBOT_EMAIL)")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required (config or KEEPBOT_PASSWORD)")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.MaxTries < 1 {
		return fmt.Errorf("max_tries must be at least 1, got %d", c.MaxTries)
	}
	if c.CorrectTimeout != "" {
		if _, err := time.ParseDuration(c.CorrectTimeout); err != nil {
			return fmt.Errorf("invalid correct_timeout %q: %w", c.CorrectTimeout, err)
		}
	}
	return nil
}

// CorrectTimeoutDuration parses CorrectTimeout, falling back to the default
// when unset or malformed.
func (c *Config) CorrectTimeoutDuration() time.Duration {
	if c.CorrectTimeout == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(c.CorrectTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}
