package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
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
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateBackend(&cfg.Backend)...)
	errs = append(errs, validateModels(&cfg.Models)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateEventLog(&cfg.EventLog)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Conversion.MaxVisionTextChars < 0 {
		errs = append(errs, FieldError{
			Field:   "conversion.max_vision_text_chars",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxy validates proxy configuration.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.read_timeout", Message: "must be non-negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.write_timeout", Message: "must be non-negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.idle_timeout", Message: "must be non-negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_body_bytes", Message: "must be non-negative"})
	}

	return errs
}

// validateBackend validates the backend connection settings.
func validateBackend(cfg *BackendConfig) []FieldError {
	var errs []FieldError

	if cfg.APIKey == "" {
		errs = append(errs, FieldError{
			Field:   "backend.api_key",
			Message: "backend API key is required (set OPENAI_API_KEY)",
		})
	}

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   "backend.base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, FieldError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("invalid base URL %q: must be an absolute http(s) URL", cfg.BaseURL),
		})
	}

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "backend.timeout", Message: "must be non-negative"})
	}
	if cfg.MaxRetries > 10 {
		errs = append(errs, FieldError{
			Field:   "backend.max_retries",
			Message: fmt.Sprintf("max retries %d exceeds limit of 10", cfg.MaxRetries),
		})
	}
	if cfg.RetryBackoff < 0 {
		errs = append(errs, FieldError{Field: "backend.retry_backoff", Message: "must be non-negative"})
	}

	for name := range cfg.CustomHeaders {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\r\n:") {
			errs = append(errs, FieldError{
				Field:   "backend.custom_headers",
				Message: fmt.Sprintf("invalid header name %q", name),
			})
		}
	}

	return errs
}

func validateModels(cfg *ModelsConfig) []FieldError {
	var errs []FieldError

	for field, value := range map[string]string{
		"models.big":    cfg.Big,
		"models.middle": cfg.Middle,
		"models.small":  cfg.Small,
		"models.vision": cfg.Vision,
	} {
		if value == "" {
			errs = append(errs, FieldError{Field: field, Message: "model name is required"})
		}
	}

	if cfg.DefaultContextLimit < 4096 {
		errs = append(errs, FieldError{
			Field:   "models.default_context_limit",
			Message: "context limit must be at least 4096 tokens",
		})
	}

	return errs
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxTokens < 1 {
		errs = append(errs, FieldError{Field: "limits.max_tokens", Message: "must be at least 1"})
	}
	if cfg.MinTokens < 1 {
		errs = append(errs, FieldError{Field: "limits.min_tokens", Message: "must be at least 1"})
	}

	return errs
}

func validateEventLog(cfg *EventLogConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case "file":
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{Field: "event_log.file_path", Message: "file path is required for the file backend"})
		}
		if cfg.MaxSizeMB < 1 {
			errs = append(errs, FieldError{Field: "event_log.max_size_mb", Message: "must be at least 1"})
		}
		if _, err := cron.ParseStandard(cfg.RotateSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "event_log.rotate_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.RotateSchedule, err),
			})
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{Field: "event_log.sqlite_path", Message: "sqlite path is required for the sqlite backend"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "event_log.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'file', 'sqlite', or 'memory'", cfg.Backend),
		})
	}

	if cfg.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "event_log.buffer_size", Message: "must be at least 1"})
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

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}

// APIKeyLooksValid reports whether the backend key has a plausible shape.
// Only api.openai.com keys are checked for the "sk-" prefix; other
// OpenAI-compatible services use their own formats.
func (b *BackendConfig) APIKeyLooksValid() bool {
	if b.APIKey == "" {
		return false
	}
	if strings.Contains(b.BaseURL, "api.openai.com") {
		return strings.HasPrefix(b.APIKey, "sk-")
	}
	return true
}
