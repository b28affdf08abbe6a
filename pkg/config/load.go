package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// customHeaderPrefix marks environment variables that become backend headers.
// CUSTOM_HEADER_X_TEAM=core sends "X-TEAM: core".
const customHeaderPrefix = "CUSTOM_HEADER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// An empty path yields the default configuration. It applies default values,
// validates the configuration, and returns any errors. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables from a .env file in the working
// directory are loaded first without replacing variables already set.
//
// Two naming schemes are honoured: COURIER_SECTION_FIELD
// (e.g. COURIER_BACKEND_BASE_URL) and the short names used by earlier
// deployments (OPENAI_API_KEY, BIG_MODEL, MAX_TOKENS_LIMIT, ...). The
// COURIER_ form wins when both are set.
//
// The loading sequence is:
// 1. Load .env (if present)
// 2. Load YAML from file on top of defaults
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// readConfig decodes the YAML file on top of DefaultConfig.
func readConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Short names are applied first so that COURIER_* variables take precedence.
func applyEnvOverrides(cfg *Config) {
	applyShortEnvOverrides(cfg)

	// Proxy overrides
	setString("COURIER_PROXY_LISTEN_ADDRESS", &cfg.Proxy.ListenAddress)
	setDuration("COURIER_PROXY_READ_TIMEOUT", &cfg.Proxy.ReadTimeout)
	setDuration("COURIER_PROXY_WRITE_TIMEOUT", &cfg.Proxy.WriteTimeout)
	setDuration("COURIER_PROXY_IDLE_TIMEOUT", &cfg.Proxy.IdleTimeout)
	setDuration("COURIER_PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	setInt("COURIER_PROXY_MAX_HEADER_BYTES", &cfg.Proxy.MaxHeaderBytes)
	if val := os.Getenv("COURIER_PROXY_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Proxy.MaxBodyBytes = i
		}
	}

	// Backend overrides
	setString("COURIER_BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	setString("COURIER_BACKEND_API_KEY", &cfg.Backend.APIKey)
	setString("COURIER_BACKEND_API_VERSION", &cfg.Backend.APIVersion)
	setDuration("COURIER_BACKEND_TIMEOUT", &cfg.Backend.Timeout)
	setInt("COURIER_BACKEND_MAX_RETRIES", &cfg.Backend.MaxRetries)
	setDuration("COURIER_BACKEND_RETRY_BACKOFF", &cfg.Backend.RetryBackoff)
	setDuration("COURIER_BACKEND_HEALTH_CHECK_INTERVAL", &cfg.Backend.HealthCheckInterval)

	// Model overrides
	setString("COURIER_MODELS_BIG", &cfg.Models.Big)
	setString("COURIER_MODELS_MIDDLE", &cfg.Models.Middle)
	setString("COURIER_MODELS_SMALL", &cfg.Models.Small)
	setString("COURIER_MODELS_VISION", &cfg.Models.Vision)
	setInt("COURIER_MODELS_DEFAULT_CONTEXT_LIMIT", &cfg.Models.DefaultContextLimit)

	// Limits overrides
	setInt("COURIER_LIMITS_MAX_TOKENS", &cfg.Limits.MaxTokens)
	setInt("COURIER_LIMITS_MIN_TOKENS", &cfg.Limits.MinTokens)

	// Conversion and translation overrides
	setBool("COURIER_CONVERSION_DISABLE_TOOLS", &cfg.Conversion.DisableTools)
	setBool("COURIER_CONVERSION_STRIP_IMAGE_CONTEXT", &cfg.Conversion.StripImageContext)
	setInt("COURIER_CONVERSION_MAX_VISION_TEXT_CHARS", &cfg.Conversion.MaxVisionTextChars)
	setBool("COURIER_TRANSLATION_ACCEPT_TRAILING_USAGE", &cfg.Translation.AcceptTrailingUsage)

	// Auth overrides
	setString("COURIER_AUTH_CLIENT_API_KEY", &cfg.Auth.ClientAPIKey)
	setBool("COURIER_AUTH_IGNORE_CLIENT_API_KEY", &cfg.Auth.IgnoreClientAPIKey)

	// Event log overrides
	setBool("COURIER_EVENT_LOG_ENABLED", &cfg.EventLog.Enabled)
	setString("COURIER_EVENT_LOG_BACKEND", &cfg.EventLog.Backend)
	setString("COURIER_EVENT_LOG_FILE_PATH", &cfg.EventLog.FilePath)
	setInt("COURIER_EVENT_LOG_MAX_SIZE_MB", &cfg.EventLog.MaxSizeMB)
	setString("COURIER_EVENT_LOG_ROTATE_SCHEDULE", &cfg.EventLog.RotateSchedule)
	setString("COURIER_EVENT_LOG_SQLITE_PATH", &cfg.EventLog.SQLitePath)

	// Telemetry overrides
	setString("COURIER_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("COURIER_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("COURIER_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setString("COURIER_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	setBool("COURIER_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	setString("COURIER_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv("COURIER_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	setBool("COURIER_WATCH_ENABLED", &cfg.Watch.Enabled)

	setString("COURIER_SECRETS_DIR", &cfg.Secrets.Dir)
}

// applyShortEnvOverrides applies the short variable names.
func applyShortEnvOverrides(cfg *Config) {
	setString("OPENAI_API_KEY", &cfg.Backend.APIKey)
	setString("OPENAI_BASE_URL", &cfg.Backend.BaseURL)
	setString("AZURE_API_VERSION", &cfg.Backend.APIVersion)
	setInt("MAX_RETRIES", &cfg.Backend.MaxRetries)
	if val := os.Getenv("REQUEST_TIMEOUT"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			cfg.Backend.Timeout = time.Duration(secs) * time.Second
		}
	}

	host, port := os.Getenv("HOST"), os.Getenv("PORT")
	if host != "" || port != "" {
		curHost, curPort, err := net.SplitHostPort(cfg.Proxy.ListenAddress)
		if err != nil {
			curHost, curPort = "0.0.0.0", "8083"
		}
		if host != "" {
			curHost = host
		}
		if port != "" {
			curPort = port
		}
		cfg.Proxy.ListenAddress = net.JoinHostPort(curHost, curPort)
	}

	if fields := strings.Fields(os.Getenv("LOG_LEVEL")); len(fields) > 0 {
		level := strings.ToLower(fields[0])
		if level == "warning" {
			level = "warn"
		}
		cfg.Telemetry.Logging.Level = level
	}

	// Middle tracks Big unless it was configured separately.
	middleFollowsBig := cfg.Models.Middle == cfg.Models.Big
	setString("BIG_MODEL", &cfg.Models.Big)
	if middleFollowsBig {
		cfg.Models.Middle = cfg.Models.Big
	}
	setString("MIDDLE_MODEL", &cfg.Models.Middle)
	setString("SMALL_MODEL", &cfg.Models.Small)
	setString("VISION_MODEL", &cfg.Models.Vision)
	setInt("BIG_MODEL_CONTEXT_LIMIT", &cfg.Models.BigContextLimit)
	setInt("MIDDLE_MODEL_CONTEXT_LIMIT", &cfg.Models.MiddleContextLimit)
	setInt("SMALL_MODEL_CONTEXT_LIMIT", &cfg.Models.SmallContextLimit)
	setInt("VISION_MODEL_CONTEXT_LIMIT", &cfg.Models.VisionContextLimit)
	setInt("DEFAULT_CONTEXT_LIMIT", &cfg.Models.DefaultContextLimit)

	setInt("MAX_TOKENS_LIMIT", &cfg.Limits.MaxTokens)
	setInt("MIN_TOKENS_LIMIT", &cfg.Limits.MinTokens)

	setBool("DISABLE_TOOLS", &cfg.Conversion.DisableTools)
	setBool("STRIP_IMAGE_CONTEXT", &cfg.Conversion.StripImageContext)

	setString("ANTHROPIC_API_KEY", &cfg.Auth.ClientAPIKey)
	setBool("IGNORE_CLIENT_API_KEY", &cfg.Auth.IgnoreClientAPIKey)

	for name, value := range customHeadersFromEnv(os.Environ()) {
		if cfg.Backend.CustomHeaders == nil {
			cfg.Backend.CustomHeaders = make(map[string]string)
		}
		cfg.Backend.CustomHeaders[name] = value
	}
}

// customHeadersFromEnv extracts CUSTOM_HEADER_* variables from an
// environment listing in KEY=VALUE form.
func customHeadersFromEnv(environ []string) map[string]string {
	headers := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, customHeaderPrefix) || value == "" {
			continue
		}
		name := strings.TrimPrefix(key, customHeaderPrefix)
		if name == "" {
			continue
		}
		headers[strings.ReplaceAll(name, "_", "-")] = value
	}
	return headers
}

func setString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
