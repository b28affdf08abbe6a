package proxy

import (
	"net/http"
	"time"

	"mercator-hq/courier/pkg/proxy/types"
)

// RequestMetadata contains extracted metadata from an HTTP request.
// This is used for logging, metrics, and the event log.
type RequestMetadata struct {
	// RequestID is a unique identifier for the request.
	RequestID string

	// Model is the frontend model name.
	Model string

	// BackendModel is the model the request was mapped to.
	BackendModel string

	// Stream indicates whether streaming is requested.
	Stream bool

	// MaxTokens is the requested completion budget.
	MaxTokens int

	// Messages is the number of frontend messages.
	Messages int

	// Tools is the number of declared tools.
	Tools int

	// APIKey is the client key, redacted.
	APIKey string

	Method     string
	Path       string
	UserAgent  string
	RemoteAddr string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

// ResponseMetadata describes how a request ended.
type ResponseMetadata struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
	StopReason string
	Usage      types.Usage

	// Outcome is one of the Outcome constants for streams, or "completed"
	// and "error" for non-streaming requests.
	Outcome string

	Error error
}

// ExtractRequestMetadata extracts metadata from an HTTP request and its
// decoded body.
func ExtractRequestMetadata(r *http.Request, req *types.MessagesRequest, requestID string) *RequestMetadata {
	return &RequestMetadata{
		RequestID:  requestID,
		Model:      req.Model,
		Stream:     req.Stream,
		MaxTokens:  req.MaxTokens,
		Messages:   len(req.Messages),
		Tools:      len(req.Tools),
		APIKey:     RedactAPIKey(ExtractAPIKey(r)),
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Timestamp:  time.Now(),
	}
}

// LogAttrs returns key/value pairs for slog.
func (m *RequestMetadata) LogAttrs() []any {
	return []any{
		"request_id", m.RequestID,
		"model", m.Model,
		"backend_model", m.BackendModel,
		"stream", m.Stream,
		"max_tokens", m.MaxTokens,
		"messages", m.Messages,
		"tools", m.Tools,
	}
}

// RedactAPIKey redacts an API key for safe logging.
// It shows only the first 7 and last 4 characters.
//
// Example:
//
//	sk-1234567890abcdef -> sk-1234...cdef
func RedactAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}

	if len(apiKey) < 12 {
		return "***"
	}

	return apiKey[:7] + "..." + apiKey[len(apiKey)-4:]
}

// IsSuccess returns true if the response was successful (2xx status code).
func (m *ResponseMetadata) IsSuccess() bool {
	return m.StatusCode >= 200 && m.StatusCode < 300
}
