package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateProviders(&cfg.Providers)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateRouting(&cfg.Routing)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Host == "" {
		errs = append(errs, FieldError{
			Field:   "server.host",
			Message: "host is required",
		})
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.RequestDeadline <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.request_deadline",
			Message: "request deadline must be positive",
		})
	}
	if cfg.RequestDeadline > 0 && cfg.WriteTimeout > 0 && cfg.WriteTimeout <= cfg.RequestDeadline {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must exceed the request deadline",
		})
	}

	if cfg.Workers < 1 {
		errs = append(errs, FieldError{
			Field:   "server.workers",
			Message: "workers must be at least 1",
		})
	}

	return errs
}

// validateDatabase validates persistence configuration.
func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "database.path",
			Message: "database path is required",
		})
	}

	return errs
}

// validateProviders validates provider defaults.
func validateProviders(cfg *ProvidersConfig) []FieldError {
	var errs []FieldError

	if cfg.OllamaURL == "" {
		errs = append(errs, FieldError{
			Field:   "providers.ollama_url",
			Message: "local inference server URL is required",
		})
	} else if _, err := url.Parse(cfg.OllamaURL); err != nil {
		errs = append(errs, FieldError{
			Field:   "providers.ollama_url",
			Message: fmt.Sprintf("invalid URL format: %v", err),
		})
	}

	if cfg.DefaultLocalModel == "" {
		errs = append(errs, FieldError{
			Field:   "providers.default_local_model",
			Message: "default local model is required",
		})
	}

	return errs
}

// validateRetry validates retry/backoff configuration.
func validateRetry(cfg *RetryConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{
			Field:   "retry.max_attempts",
			Message: "max attempts must be at least 1",
		})
	}
	if cfg.MaxAttempts > 10 {
		errs = append(errs, FieldError{
			Field:   "retry.max_attempts",
			Message: "max attempts exceeds reasonable limit (10)",
		})
	}
	if cfg.Base <= 0 {
		errs = append(errs, FieldError{
			Field:   "retry.base",
			Message: "base backoff must be positive",
		})
	}
	if cfg.Growth < 1 {
		errs = append(errs, FieldError{
			Field:   "retry.growth",
			Message: "growth factor must be at least 1",
		})
	}

	return errs
}

// validateRouting validates routing configuration. Rule maps are permissive
// (unknown families are caught at router construction, where the set of
// registered families is known), but entries must be non-empty.
func validateRouting(cfg *RoutingConfig) []FieldError {
	var errs []FieldError

	for prefix, family := range cfg.Rules {
		if prefix == "" || family == "" {
			errs = append(errs, FieldError{
				Field:   "routing.rules",
				Message: "rule prefixes and families must be non-empty",
			})
			break
		}
	}

	for _, pair := range strings.Split(cfg.Fallbacks, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		src, dst, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
			errs = append(errs, FieldError{
				Field:   "routing.fallbacks",
				Message: fmt.Sprintf("invalid fallback rule %q: expected src:dst", pair),
			})
		}
	}

	return errs
}

// validateHealth validates probe loop configuration.
func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if cfg.ProbePeriod <= 0 {
		errs = append(errs, FieldError{
			Field:   "health.probe_period",
			Message: "probe period must be positive",
		})
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "health.probe_timeout",
			Message: "probe timeout must be positive",
		})
	}
	if cfg.ProbeTimeout > 0 && cfg.ProbePeriod > 0 && cfg.ProbeTimeout >= cfg.ProbePeriod {
		errs = append(errs, FieldError{
			Field:   "health.probe_timeout",
			Message: "probe timeout must be shorter than the probe period",
		})
	}

	return errs
}

// validateAlerts validates alert configuration.
func validateAlerts(cfg *AlertConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if cfg.CheckPeriod <= 0 {
		errs = append(errs, FieldError{
			Field:   "alerts.check_period",
			Message: "check period must be positive",
		})
	}
	if cfg.ConsecutiveErrorThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "alerts.consecutive_error_threshold",
			Message: "consecutive error threshold must be at least 1",
		})
	}
	if cfg.LatencyMultiplier <= 1 {
		errs = append(errs, FieldError{
			Field:   "alerts.latency_multiplier",
			Message: "latency multiplier must be greater than 1",
		})
	}
	if cfg.BudgetThresholdPercent <= 0 || cfg.BudgetThresholdPercent > 100 {
		errs = append(errs, FieldError{
			Field:   "alerts.budget_threshold_percent",
			Message: "budget threshold must be between 0 and 100",
		})
	}
	if cfg.WebhookURL != "" {
		if _, err := url.Parse(cfg.WebhookURL); err != nil {
			errs = append(errs, FieldError{
				Field:   "alerts.webhook_url",
				Message: fmt.Sprintf("invalid URL format: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path is required when metrics are enabled",
			})
		} else if cfg.Metrics.Path[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
	}

	return errs
}
