package eventlog

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one client telemetry event as stored.
type Event struct {
	// ID is a UUID assigned on receipt.
	ID string `json:"id"`

	// Timestamp is when the batch containing the event was received.
	Timestamp time.Time `json:"timestamp"`

	// ClientIP is the address of the client that posted the batch.
	ClientIP string `json:"client_ip"`

	// Event is the event exactly as the client sent it (after repair).
	Event json.RawMessage `json:"event"`
}

// Storage defines the interface for event log backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a batch of events. A batch is written in order.
	Store(ctx context.Context, events []*Event) error

	// Count returns the number of stored events.
	Count(ctx context.Context) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Rotatable is implemented by backends that can roll over their storage.
type Rotatable interface {
	// Rotate rolls the storage over if it exceeds its size limit and
	// reports whether it did.
	Rotate(ctx context.Context) (bool, error)
}
