package config

import "time"

// Config is the root configuration structure for Courier.
// It contains all configuration sections for the proxy server, the
// OpenAI-compatible backend, model mapping, request conversion, event
// logging, and telemetry.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// timeouts, and body limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Backend contains configuration for the OpenAI-compatible chat
	// completions endpoint that requests are forwarded to.
	Backend BackendConfig `yaml:"backend"`

	// Models maps Claude model families onto backend model names and
	// holds per-model context window sizes.
	Models ModelsConfig `yaml:"models"`

	// Limits bounds the max_tokens value forwarded to the backend.
	Limits LimitsConfig `yaml:"limits"`

	// Conversion controls how Anthropic requests are reshaped before
	// being sent to the backend.
	Conversion ConversionConfig `yaml:"conversion"`

	// Translation controls streaming response translation.
	Translation TranslationConfig `yaml:"translation"`

	// Auth contains client API key validation settings.
	Auth AuthConfig `yaml:"auth"`

	// EventLog configures storage for client telemetry batches.
	EventLog EventLogConfig `yaml:"event_log"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Watch enables hot reload of the configuration file.
	Watch WatchConfig `yaml:"watch"`

	// Secrets configures how ${secret:name} references in credential
	// fields are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ProxyConfig contains configuration for the HTTP proxy server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the proxy to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8083", "0.0.0.0:8083").
	// Default: "0.0.0.0:8083"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming responses can run for minutes, so zero (no
	// timeout) is the default.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of request bodies.
	// Default: 33554432 (32MB, large enough for base64 images)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Api-Key", "Anthropic-Version", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// BackendConfig contains configuration for the OpenAI-compatible backend.
type BackendConfig struct {
	// BaseURL is the base URL of the chat completions API.
	// Default: "https://api.tokenfactory.nebius.com/v1"
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates the proxy against the backend. Required.
	APIKey string `yaml:"api_key"`

	// APIVersion selects Azure OpenAI mode when non-empty. The value is sent
	// as the api-version query parameter and the key as the api-key header.
	APIVersion string `yaml:"api_version"`

	// Timeout is the per-attempt request timeout.
	// Default: 90s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base delay; attempt n waits RetryBackoff * 2^n.
	// Default: 500ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// HealthCheckInterval is how often the backend is probed in the
	// background. Zero disables background probing.
	// Default: 0
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// CustomHeaders are added to every backend request.
	CustomHeaders map[string]string `yaml:"custom_headers"`
}

// ModelsConfig maps Claude model families onto backend models.
type ModelsConfig struct {
	// Big serves opus-class requests and unknown model names.
	// Default: "zai-org/GLM-4.5"
	Big string `yaml:"big"`

	// Middle serves sonnet-class requests.
	// Default: same as Big
	Middle string `yaml:"middle"`

	// Small serves haiku-class requests and connection tests.
	// Default: "zai-org/GLM-4.5"
	Small string `yaml:"small"`

	// Vision serves any request whose latest user message carries an image.
	// Default: "Qwen/Qwen2.5-VL-72B-Instruct"
	Vision string `yaml:"vision"`

	// BigContextLimit is the context window of the big model (0 = default).
	BigContextLimit int `yaml:"big_context_limit"`

	// MiddleContextLimit is the context window of the middle model (0 = default).
	MiddleContextLimit int `yaml:"middle_context_limit"`

	// SmallContextLimit is the context window of the small model (0 = default).
	SmallContextLimit int `yaml:"small_context_limit"`

	// VisionContextLimit is the context window of the vision model (0 = default).
	VisionContextLimit int `yaml:"vision_context_limit"`

	// DefaultContextLimit applies when no per-model limit is set.
	// Default: 128000
	DefaultContextLimit int `yaml:"default_context_limit"`
}

// LimitsConfig bounds max_tokens.
type LimitsConfig struct {
	// MaxTokens is the upper bound on max_tokens sent to the backend.
	// Default: 4096
	MaxTokens int `yaml:"max_tokens"`

	// MinTokens replaces a missing or non-positive max_tokens.
	// Default: 100
	MinTokens int `yaml:"min_tokens"`
}

// ConversionConfig controls request conversion.
type ConversionConfig struct {
	// DisableTools drops tool definitions and tool_use history.
	// Default: false
	DisableTools bool `yaml:"disable_tools"`

	// StripImageContext sends only the latest image message to the vision
	// model, without the system prompt.
	// Default: true
	StripImageContext bool `yaml:"strip_image_context"`

	// MaxVisionTextChars caps the text accompanying an image.
	// Default: 1500
	MaxVisionTextChars int `yaml:"max_vision_text_chars"`
}

// TranslationConfig controls streaming translation.
type TranslationConfig struct {
	// AcceptTrailingUsage holds message_delta until the backend stream ends
	// so that a usage-only fragment sent after finish_reason is reported.
	// Content arriving after finish_reason is discarded either way.
	// Default: false
	AcceptTrailingUsage bool `yaml:"accept_trailing_usage"`
}

// AuthConfig contains client API key validation settings.
type AuthConfig struct {
	// ClientAPIKey is the key clients must present. Empty disables checks.
	ClientAPIKey string `yaml:"client_api_key"`

	// IgnoreClientAPIKey accepts any client key even when ClientAPIKey is set.
	// Default: true
	IgnoreClientAPIKey bool `yaml:"ignore_client_api_key"`
}

// EventLogConfig configures storage of client telemetry batches.
type EventLogConfig struct {
	// Enabled controls whether event batches are stored.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage implementation.
	// Options: "file", "sqlite", "memory"
	// Default: "file"
	Backend string `yaml:"backend"`

	// FilePath is the JSONL file written by the file backend.
	// Default: "Claude-proxy.log"
	FilePath string `yaml:"file_path"`

	// MaxSizeMB rotates the JSONL file to <file>.bak above this size.
	// Default: 10
	MaxSizeMB int `yaml:"max_size_mb"`

	// RotateSchedule is the cron expression for size checks.
	// Default: "*/5 * * * *"
	RotateSchedule string `yaml:"rotate_schedule"`

	// SQLitePath is the database file used by the sqlite backend.
	// Default: "data/events.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BufferSize is the capacity of the async write queue.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys masks API keys and bearer tokens in log output.
	// Default: true
	RedactKeys bool `yaml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "mercator"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "courier"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 90.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "mercator-courier"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`
}

// WatchConfig controls configuration hot reload.
type WatchConfig struct {
	// Enabled reloads the configuration file when it changes on disk.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Debounce is the quiet period before a reload is triggered.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`
}

// SecretsConfig configures secret reference resolution.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name to form the
	// environment variable that holds it.
	// Default: "COURIER_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, named after the secret
	// (e.g. /run/secrets). Files must be mode 0600 or 0400.
	// Empty disables file secrets.
	Dir string `yaml:"dir"`
}

// ContextLimit returns the context window for a backend model name.
func (m *ModelsConfig) ContextLimit(model string) int {
	overrides := []struct {
		name  string
		limit int
	}{
		{m.Big, m.BigContextLimit},
		{m.Middle, m.MiddleContextLimit},
		{m.Small, m.SmallContextLimit},
		{m.Vision, m.VisionContextLimit},
	}
	for _, o := range overrides {
		if model == o.name && o.limit > 0 {
			return o.limit
		}
	}
	if m.DefaultContextLimit > 0 {
		return m.DefaultContextLimit
	}
	return DefaultContextLimit
}

// ClientKeyValidationEnabled reports whether incoming requests must carry
// the configured client API key.
func (a *AuthConfig) ClientKeyValidationEnabled() bool {
	return a.ClientAPIKey != "" && !a.IgnoreClientAPIKey
}
