package cancel

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateID is returned by Register when the request id is already
// registered.
var ErrDuplicateID = errors.New("request id already registered")

// Signal is a one-shot cancellation flag. Fire is idempotent and safe for
// concurrent use; Done is closed once Fire has been called.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire sets the signal.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel that is closed when the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// IsSet reports whether the signal has fired.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Registry maps in-flight request ids to their cancellation signals.
// Entries are created by the backend layer when a call starts and removed
// when it ends; anything holding the id can fire the signal meanwhile.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Signal
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Signal),
		logger:  slog.Default().With("component", "cancel.registry"),
	}
}

// Register creates the signal for id. A second Register for an id that is
// still active fails with ErrDuplicateID.
func (r *Registry) Register(id string) (*Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, ErrDuplicateID
	}
	s := NewSignal()
	r.entries[id] = s
	return s, nil
}

// Cancel fires the signal for id. It returns false when no such request is
// active, which is not an error: the request may already have finished.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	s, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Fire()
	r.logger.Info("request cancelled", "request_id", id)
	return true
}

// Release removes the entry for id. It only removes the entry if it still
// holds s, so a late Release cannot drop a newer registration.
func (r *Registry) Release(id string, s *Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[id]; ok && cur == s {
		delete(r.entries, id)
	}
}

// Lookup returns the signal for id, if active.
func (r *Registry) Lookup(id string) (*Signal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[id]
	return s, ok
}

// Len returns the number of active entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Active returns the ids of all active requests.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}
