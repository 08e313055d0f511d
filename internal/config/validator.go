package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/Iron-Ham/opcoord/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "executor.max_concurrent")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidTUIModes returns the accepted tui.enabled values
func ValidTUIModes() []string {
	return []string{TUIAuto, TUIAlways, TUINever}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateTimings()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	if !slices.Contains(ValidTUIModes(), c.TUI.Enabled) {
		errors = append(errors, ValidationError{
			Field:   "tui.enabled",
			Value:   c.TUI.Enabled,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTUIModes(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if c.Executor.MaxConcurrent < 1 {
		errors = append(errors, ValidationError{
			Field:   "executor.max_concurrent",
			Value:   c.Executor.MaxConcurrent,
			Message: "must be at least 1",
		})
	}

	const maxConcurrent = 1024
	if c.Executor.MaxConcurrent > maxConcurrent {
		errors = append(errors, ValidationError{
			Field:   "executor.max_concurrent",
			Value:   c.Executor.MaxConcurrent,
			Message: fmt.Sprintf("exceeds maximum of %d", maxConcurrent),
		})
	}

	return errors
}

// validateTimings validates the indicator delay and the grant budget
func (c *Config) validateTimings() []ValidationError {
	var errors []ValidationError

	if c.Indicator.HideDelayMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "indicator.hide_delay_ms",
			Value:   c.Indicator.HideDelayMs,
			Message: "must be positive",
		})
	}

	if c.Lifecycle.GrantBudgetMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lifecycle.grant_budget_ms",
			Value:   c.Lifecycle.GrantBudgetMs,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateMetrics() []ValidationError {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		}}
	}
	return nil
}
