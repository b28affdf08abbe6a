package storage

import (
	"context"
	"sync"

	"mercator-hq/courier/pkg/eventlog"
)

// MemoryStorage keeps events in memory.
type MemoryStorage struct {
	events []*eventlog.Event
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends copies of events.
func (s *MemoryStorage) Store(ctx context.Context, events []*eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		evCopy := *ev
		s.events = append(s.events, &evCopy)
	}
	return nil
}

// Count returns the number of stored events.
func (s *MemoryStorage) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

// Events returns copies of all stored events in arrival order.
func (s *MemoryStorage) Events() []*eventlog.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*eventlog.Event, len(s.events))
	for i, ev := range s.events {
		evCopy := *ev
		out[i] = &evCopy
	}
	return out
}

// Close implements eventlog.Storage.
func (s *MemoryStorage) Close() error {
	return nil
}
