// Package config loads and validates the ledger configuration from YAML,
// with environment variable overrides for deployment-specific paths.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	// Storage selects and configures the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Pricing configures the price table source.
	Pricing PricingConfig `yaml:"pricing"`

	// Monitor configures the scheduled budget gauge refresh.
	Monitor MonitorConfig `yaml:"monitor"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus exposition endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file (sqlite driver only).
	Path string `yaml:"path"`
}

// PricingConfig configures the price table source.
type PricingConfig struct {
	// File is an optional YAML pricing file. Empty uses built-in defaults.
	File string `yaml:"file"`

	// Watch enables hot-reload of the pricing file on change.
	Watch bool `yaml:"watch"`
}

// MonitorConfig configures the budget gauge refresh schedule.
type MonitorConfig struct {
	// Enabled turns the scheduled refresh on.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression. Default: every five minutes.
	Schedule string `yaml:"schedule"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint on.
	Enabled bool `yaml:"enabled"`

	// Listen is the address to serve metrics on.
	Listen string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "ledger.db",
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Schedule: "*/5 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9464",
		},
	}
}

// Load reads a YAML configuration file, applies defaults for unset fields,
// then environment overrides, then validates. A missing file yields the
// defaults rather than an error so the binary runs out of the box.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-specific fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("SUTRA_LEDGER_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SUTRA_LEDGER_PRICING_FILE"); v != "" {
		c.Pricing.File = v
	}
	if v := os.Getenv("SUTRA_LEDGER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "memory":
		// No further configuration.
	default:
		return fmt.Errorf("unknown storage driver %q (want sqlite or memory)", c.Storage.Driver)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	if c.Pricing.Watch && c.Pricing.File == "" {
		return fmt.Errorf("pricing.watch requires pricing.file")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}

	return nil
}
