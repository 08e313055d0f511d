package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero concurrency", func(c *Config) { c.Executor.MaxConcurrent = 0 }, "executor.max_concurrent"},
		{"huge concurrency", func(c *Config) { c.Executor.MaxConcurrent = 5000 }, "executor.max_concurrent"},
		{"zero hide delay", func(c *Config) { c.Indicator.HideDelayMs = 0 }, "indicator.hide_delay_ms"},
		{"negative grant budget", func(c *Config) { c.Lifecycle.GrantBudgetMs = -1 }, "lifecycle.grant_budget_ms"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 2000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
		{"bad metrics addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = "9464"
		}, "metrics.addr"},
		{"bad tui mode", func(c *Config) { c.TUI.Enabled = "yes" }, "tui.enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidateAcceptsLowercaseLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestMetricsAddrIgnoredWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Addr = "not an address"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidationErrorsFormat(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") || !strings.Contains(msg, "b: worse (got: 2)") {
		t.Errorf("Error() = %q", msg)
	}
	if got := errs[:1].Error(); got != "a: bad (got: 1)" {
		t.Errorf("single Error() = %q", got)
	}
	if got := (ValidationErrors{}).Error(); got != "" {
		t.Errorf("empty Error() = %q", got)
	}
}
