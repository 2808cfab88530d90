// Package config loads the demo application's configuration from YAML
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Logger  LoggerConfig  `yaml:"logger"`
	Updater UpdaterConfig `yaml:"updater"`
}

// AppConfig holds application identity settings.
type AppConfig struct {
	// Name is used to derive per-user state paths (config dir, cache
	// dir).
	Name string `yaml:"name"`
}

// LoggerConfig holds logging settings. A TUI owns the terminal, so the
// default output is a file rather than stderr.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // file path, "stdout", "stderr", or "discard"
}

// UpdaterConfig holds self-update settings.
type UpdaterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Owner         string        `yaml:"owner"`
	Repo          string        `yaml:"repo"`
	CheckOnStart  bool          `yaml:"check_on_start"`
	CheckEvery    time.Duration `yaml:"check_every"`
	CheckSchedule string        `yaml:"check_schedule"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		App: AppConfig{Name: "teaplug-demo"},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "discard",
		},
		Updater: UpdaterConfig{
			Enabled:      false,
			CheckOnStart: true,
			CheckEvery:   6 * time.Hour,
		},
	}
}

// Load reads path, layers it over the defaults, and applies environment
// overrides. A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values from TEAPLUG_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TEAPLUG_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TEAPLUG_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TEAPLUG_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("TEAPLUG_UPDATER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Updater.Enabled = b
		}
	}
	if v := os.Getenv("TEAPLUG_UPDATER_CHECK_EVERY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Updater.CheckEvery = d
		}
	}
}

// Validate reports configuration the application cannot start with.
func (c Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("config: app.name is required")
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logger.Level)
	}
	switch strings.ToLower(c.Logger.Format) {
	case "text", "json", "":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logger.Format)
	}

	if c.Updater.Enabled {
		if c.Updater.Owner == "" || c.Updater.Repo == "" {
			return fmt.Errorf("config: updater.owner and updater.repo are required when the updater is enabled")
		}
		if c.Updater.CheckEvery < 0 {
			return fmt.Errorf("config: updater.check_every must not be negative")
		}
	}
	return nil
}
