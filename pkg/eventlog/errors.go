package eventlog

import (
	"errors"
	"fmt"
)

// ErrRecorderClosed is returned when recording after Close.
var ErrRecorderClosed = errors.New("event recorder is closed")

// ErrQueueFull is returned when the asynchronous write queue has no room.
var ErrQueueFull = errors.New("event log queue is full")

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("file", "sqlite", "memory")
	Operation string // Operation that failed ("store", "rotate", "open", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("event log storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// ParseError reports a batch body that could not be parsed even after
// repairing unquoted keys.
type ParseError struct {
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable event batch: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
