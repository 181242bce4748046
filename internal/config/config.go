// Package config loads runtime settings from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"shotcounter/server/logging"
)

// Config describes everything the server binary needs to start.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	ClientDir string `env:"CLIENT_DIR"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	StoreDSN    string `env:"STORE_DSN"`

	LogSinks    []string `env:"LOG_SINKS" envSeparator:"," envDefault:"console"`
	LogSeverity string   `env:"LOG_SEVERITY" envDefault:"info"`
	LogBuffer   int      `env:"LOG_BUFFER" envDefault:"512"`
	LogFilePath string   `env:"LOG_FILE_PATH"`

	BroadcastBuffer   int           `env:"BROADCAST_BUFFER" envDefault:"16"`
	JournalCapacity   int           `env:"JOURNAL_CAPACITY" envDefault:"64"`
	JournalMaxAge     time.Duration `env:"JOURNAL_MAX_AGE" envDefault:"10m"`
	IntentMinInterval time.Duration `env:"INTENT_MIN_INTERVAL"`

	SeedRoster bool `env:"SEED_ROSTER" envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
	case "sqlite3":
		if c.StoreDSN == "" {
			c.StoreDSN = ":memory:"
		}
	case "postgres":
		if c.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN required for driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if _, err := c.Severity(); err != nil {
		return err
	}
	if c.BroadcastBuffer <= 0 {
		return fmt.Errorf("BROADCAST_BUFFER must be positive, got %d", c.BroadcastBuffer)
	}
	return nil
}

// Severity maps the configured severity name onto the logging level.
func (c Config) Severity() (logging.Severity, error) {
	switch c.LogSeverity {
	case "debug":
		return logging.SeverityDebug, nil
	case "info", "":
		return logging.SeverityInfo, nil
	case "warn":
		return logging.SeverityWarn, nil
	case "error":
		return logging.SeverityError, nil
	default:
		return logging.SeverityInfo, fmt.Errorf("unknown log severity %q", c.LogSeverity)
	}
}

// LoggingConfig builds the router configuration from the parsed settings.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		cfg.EnabledSinks = append([]string(nil), c.LogSinks...)
	}
	if c.LogBuffer > 0 {
		cfg.BufferSize = c.LogBuffer
	}
	if severity, err := c.Severity(); err == nil {
		cfg.MinimumSeverity = severity
	}
	if c.LogFilePath != "" {
		cfg.JSON.FilePath = c.LogFilePath
	}
	return cfg
}
