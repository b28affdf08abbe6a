package providers

import "context"

// Backend is the contract between the proxy and an OpenAI-compatible chat
// completions service.
//
// requestID, when non-empty, registers the call for external cancellation;
// a cancelled call fails with a KindCancelled *Error.
type Backend interface {
	// Complete sends a non-streaming request, retrying transient failures.
	Complete(ctx context.Context, req *ChatRequest, requestID string) (*ChatResponse, error)

	// Stream opens a streaming request. Only connection setup is retried;
	// once fragments flow, failures are reported by StreamReader.Read.
	Stream(ctx context.Context, req *ChatRequest, requestID string) (StreamReader, error)

	// HealthCheck probes the backend once.
	HealthCheck(ctx context.Context) error

	// IsHealthy returns the tracked health status.
	IsHealthy() bool

	// GetHealth returns detailed health information.
	GetHealth() ProviderHealth

	// Close releases pooled connections and background goroutines.
	Close() error
}

// StreamReader yields the fragments of a streaming response.
type StreamReader interface {
	// Read reads the next chunk from the stream.
	// Returns nil and io.EOF when the stream ends normally.
	// Returns nil and an error if an error occurs.
	Read(ctx context.Context) (*StreamChunk, error)

	// Close closes the stream and releases resources. It is idempotent.
	Close() error
}
