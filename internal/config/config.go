package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/opcoord/internal/logging"
)

// EnvPrefix is the prefix for environment variable overrides
// (OPCOORD_EXECUTOR_MAX_CONCURRENT and so on).
const EnvPrefix = "OPCOORD"

// Config represents the complete opcoord configuration
type Config struct {
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Indicator IndicatorConfig `mapstructure:"indicator"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// ExecutorConfig controls the reference executor
type ExecutorConfig struct {
	// MaxConcurrent bounds how many operation bodies run at once (default: 4)
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// IndicatorConfig controls the activity indicator
type IndicatorConfig struct {
	// HideDelayMs is how long the indicator stays visible after the last
	// activity ends (default: 1000)
	HideDelayMs int `mapstructure:"hide_delay_ms"`
}

// LifecycleConfig controls background execution grants and the sources of
// environment transitions
type LifecycleConfig struct {
	// GrantBudgetMs is how long a grant lasts before it expires (default: 30000)
	GrantBudgetMs int `mapstructure:"grant_budget_ms"`
	// StateFile, if set, is watched for "background" or "foreground"
	StateFile string `mapstructure:"state_file"`
	// Signals maps SIGUSR1/SIGUSR2 to background/foreground
	Signals bool `mapstructure:"signals"`
}

// ContractsConfig controls how contract violations are handled
type ContractsConfig struct {
	// Strict panics on contract violations instead of logging and rejecting
	Strict bool `mapstructure:"strict"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging to file is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: DEBUG, INFO, WARN or ERROR (default: INFO)
	Level string `mapstructure:"level"`
	// Dir is where opcoord.log is written. Empty means the state directory.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TUI modes.
const (
	TUIAuto   = "auto"
	TUIAlways = "always"
	TUINever  = "never"
)

// TUIConfig controls the live status view
type TUIConfig struct {
	// Enabled is auto (only on a terminal), always or never (default: auto)
	Enabled string `mapstructure:"enabled"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			MaxConcurrent: 4,
		},
		Indicator: IndicatorConfig{
			HideDelayMs: 1000,
		},
		Lifecycle: LifecycleConfig{
			GrantBudgetMs: 30000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      logging.LevelInfo,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		TUI: TUIConfig{
			Enabled: TUIAuto,
		},
	}
}

// HideDelay returns the indicator hide delay as a time.Duration
func (c *IndicatorConfig) HideDelay() time.Duration {
	return time.Duration(c.HideDelayMs) * time.Millisecond
}

// GrantBudget returns the grant budget as a time.Duration
func (c *LifecycleConfig) GrantBudget() time.Duration {
	return time.Duration(c.GrantBudgetMs) * time.Millisecond
}

// Rotation returns the rotation settings for the log file
func (c *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// LogDir returns the directory the log file is written to
func (c *LoggingConfig) LogDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return StateDir()
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("executor.max_concurrent", defaults.Executor.MaxConcurrent)

	viper.SetDefault("indicator.hide_delay_ms", defaults.Indicator.HideDelayMs)

	viper.SetDefault("lifecycle.grant_budget_ms", defaults.Lifecycle.GrantBudgetMs)
	viper.SetDefault("lifecycle.state_file", defaults.Lifecycle.StateFile)
	viper.SetDefault("lifecycle.signals", defaults.Lifecycle.Signals)

	viper.SetDefault("contracts.strict", defaults.Contracts.Strict)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)

	viper.SetDefault("tui.enabled", defaults.TUI.Enabled)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "opcoord")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opcoord"
	}
	return filepath.Join(home, ".config", "opcoord")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory for logs and other runtime files
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "opcoord")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opcoord"
	}
	return filepath.Join(home, ".local", "state", "opcoord")
}
