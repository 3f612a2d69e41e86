package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/radio-control/ranger/internal/auth"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "ranging.cache_capacity")
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

// ValidBackends returns the list of scanning backends
func ValidBackends() []string {
	return []string{"fake", "bluez", "tinygo"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config and returns every problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateRanging()...)
	errs = append(errs, c.validateAdapter()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateTelemetry()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateAudit()...)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c *Config) validateRanging() []ValidationError {
	var errors []ValidationError

	if c.Ranging.CacheCapacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "ranging.cache_capacity",
			Value:   c.Ranging.CacheCapacity,
			Message: "must be at least 1",
		})
	}
	if c.Ranging.CommandQueueDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "ranging.command_queue_depth",
			Value:   c.Ranging.CommandQueueDepth,
			Message: "must be at least 1",
		})
	}
	if c.Ranging.BindTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "ranging.bind_timeout",
			Value:   c.Ranging.BindTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateAdapter() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Adapter.Backend) {
		errors = append(errors, ValidationError{
			Field:   "adapter.backend",
			Value:   c.Adapter.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}
	if c.Adapter.Device == "" {
		errors = append(errors, ValidationError{
			Field:   "adapter.device",
			Value:   c.Adapter.Device,
			Message: "cannot be empty",
		})
	}
	if c.Adapter.ScenarioFile != "" && c.Adapter.Backend != "fake" {
		errors = append(errors, ValidationError{
			Field:   "adapter.scenario_file",
			Value:   c.Adapter.ScenarioFile,
			Message: "only applies to the fake backend",
		})
	}

	return errors
}

func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError

	if c.Auth.BindSecret != "" && len(c.Auth.BindSecret) < auth.MinSecretLength {
		errors = append(errors, ValidationError{
			Field:   "auth.bind_secret",
			Value:   fmt.Sprintf("<%d bytes>", len(c.Auth.BindSecret)),
			Message: fmt.Sprintf("must be at least %d bytes", auth.MinSecretLength),
		})
	}
	if c.Auth.TokenTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "auth.token_ttl",
			Value:   c.Auth.TokenTTL,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTelemetry() []ValidationError {
	var errors []ValidationError

	if c.Telemetry.EventBufferSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "telemetry.event_buffer_size",
			Value:   c.Telemetry.EventBufferSize,
			Message: "must be at least 1",
		})
	}
	if c.Telemetry.SubscriberBuffer < 1 {
		errors = append(errors, ValidationError{
			Field:   "telemetry.subscriber_buffer",
			Value:   c.Telemetry.SubscriberBuffer,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB <= 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 1 and %d", maxLogSizeMB),
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxAgeDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_age_days",
			Value:   c.Logging.MaxAgeDays,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateAudit() []ValidationError {
	var errors []ValidationError

	if c.Audit.File == "" {
		return errors
	}
	if c.Audit.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "audit.max_size_mb",
			Value:   c.Audit.MaxSizeMB,
			Message: "must be positive",
		})
	}
	if c.Audit.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "audit.max_backups",
			Value:   c.Audit.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
