package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "0.0.0.0:8083"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 0
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 33554432 // 32MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600

	// Backend defaults
	DefaultBackendBaseURL    = "https://api.tokenfactory.nebius.com/v1"
	DefaultBackendTimeout    = 90 * time.Second
	DefaultBackendMaxRetries = 2
	DefaultRetryBackoff      = 500 * time.Millisecond

	// Model defaults
	DefaultBigModel     = "zai-org/GLM-4.5"
	DefaultSmallModel   = "zai-org/GLM-4.5"
	DefaultVisionModel  = "Qwen/Qwen2.5-VL-72B-Instruct"
	DefaultContextLimit = 128000

	// Limits defaults
	DefaultMaxTokens = 4096
	DefaultMinTokens = 100

	// Conversion defaults
	DefaultStripImageContext  = true
	DefaultMaxVisionTextChars = 1500

	// Auth defaults
	DefaultIgnoreClientAPIKey = true

	// Event log defaults
	DefaultEventLogEnabled        = true
	DefaultEventLogBackend        = "file"
	DefaultEventLogFilePath       = "Claude-proxy.log"
	DefaultEventLogMaxSizeMB      = 10
	DefaultEventLogRotateSchedule = "*/5 * * * *"
	DefaultEventLogSQLitePath     = "data/events.db"
	DefaultEventLogBufferSize     = 1000

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLoggingRedactKeys  = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "mercator"
	DefaultMetricsSubsystem   = "courier"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "mercator-courier"
	DefaultTracingInsecure    = true

	// Watch defaults
	DefaultWatchDebounce = 200 * time.Millisecond

	// Secrets defaults
	DefaultSecretsEnvPrefix = "COURIER_SECRET_"
)

// DefaultConfig returns a Config populated with every default value.
// YAML documents are decoded on top of it, so boolean fields that default
// to true keep that value unless the file sets them explicitly.
func DefaultConfig() *Config {
	cfg := &Config{
		Conversion: ConversionConfig{
			StripImageContext: DefaultStripImageContext,
		},
		Auth: AuthConfig{
			IgnoreClientAPIKey: DefaultIgnoreClientAPIKey,
		},
		EventLog: EventLogConfig{
			Enabled: DefaultEventLogEnabled,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactKeys: DefaultLoggingRedactKeys},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{Insecure: DefaultTracingInsecure},
		},
	}
	cfg.Proxy.CORS.Enabled = DefaultCORSEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxBodyBytes == 0 {
		cfg.Proxy.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&cfg.Proxy.CORS)

	// Backend defaults
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendBaseURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Backend.RetryBackoff == 0 {
		cfg.Backend.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Backend.MaxRetries < 0 {
		cfg.Backend.MaxRetries = 0
	}

	applyModelDefaults(&cfg.Models)

	// Limits defaults
	if cfg.Limits.MaxTokens == 0 {
		cfg.Limits.MaxTokens = DefaultMaxTokens
	}
	if cfg.Limits.MinTokens == 0 {
		cfg.Limits.MinTokens = DefaultMinTokens
	}
	if cfg.Limits.MaxTokens > 0 && cfg.Limits.MinTokens > cfg.Limits.MaxTokens {
		cfg.Limits.MinTokens = cfg.Limits.MaxTokens
	}

	if cfg.Conversion.MaxVisionTextChars == 0 {
		cfg.Conversion.MaxVisionTextChars = DefaultMaxVisionTextChars
	}

	applyEventLogDefaults(&cfg.EventLog)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
}

// applyCORSDefaults applies default values to CORS configuration.
func applyCORSDefaults(cors *CORSConfig) {
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Api-Key", "Anthropic-Version", "X-Request-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

// applyModelDefaults fills unset model names. Middle follows Big.
func applyModelDefaults(m *ModelsConfig) {
	if m.Big == "" {
		m.Big = DefaultBigModel
	}
	if m.Middle == "" {
		m.Middle = m.Big
	}
	if m.Small == "" {
		m.Small = DefaultSmallModel
	}
	if m.Vision == "" {
		m.Vision = DefaultVisionModel
	}
	if m.DefaultContextLimit == 0 {
		m.DefaultContextLimit = DefaultContextLimit
	}
}

func applyEventLogDefaults(e *EventLogConfig) {
	if e.Backend == "" {
		e.Backend = DefaultEventLogBackend
	}
	if e.FilePath == "" {
		e.FilePath = DefaultEventLogFilePath
	}
	if e.MaxSizeMB == 0 {
		e.MaxSizeMB = DefaultEventLogMaxSizeMB
	}
	if e.RotateSchedule == "" {
		e.RotateSchedule = DefaultEventLogRotateSchedule
	}
	if e.SQLitePath == "" {
		e.SQLitePath = DefaultEventLogSQLitePath
	}
	if e.BufferSize == 0 {
		e.BufferSize = DefaultEventLogBufferSize
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.RequestDurationBuckets) == 0 {
		t.Metrics.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 90.0}
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
}
