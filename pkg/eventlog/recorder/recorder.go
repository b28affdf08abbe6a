package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/eventlog"
	"mercator-hq/courier/pkg/eventlog/storage"
)

// Config contains configuration for the event recorder.
type Config struct {
	// Enabled enables event recording. A disabled recorder accepts and
	// discards every batch.
	Enabled bool

	// AsyncBuffer is the number of batches that may wait for the worker.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

type batch struct {
	clientIP string
	events   []*eventlog.Event
}

// Recorder queues event batches for asynchronous storage.
type Recorder struct {
	storage eventlog.Storage
	config  *Config
	queue   chan batch
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	closeOnce sync.Once
	closers   []func() error
	now       func() time.Time
}

// NewRecorder creates a recorder writing to storage. The recorder does not
// take ownership of storage; use Open for a recorder that closes its
// backend.
func NewRecorder(storage eventlog.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		queue:   make(chan batch, config.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "eventlog.recorder"),
		now:     time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("event recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record queues events received from clientIP and returns how many were
// accepted. It never blocks on storage.
func (r *Recorder) Record(ctx context.Context, clientIP string, events []json.RawMessage) (int, error) {
	if !r.config.Enabled || len(events) == 0 {
		return 0, nil
	}

	select {
	case <-r.done:
		return 0, eventlog.ErrRecorderClosed
	default:
	}

	received := r.now().UTC()
	b := batch{clientIP: clientIP, events: make([]*eventlog.Event, len(events))}
	for i, raw := range events {
		b.events[i] = &eventlog.Event{
			ID:        uuid.New().String(),
			Timestamp: received,
			ClientIP:  clientIP,
			Event:     raw,
		}
	}

	select {
	case r.queue <- b:
		r.logger.DebugContext(ctx, "event batch enqueued",
			"client_ip", clientIP,
			"events", len(events),
		)
		return len(events), nil
	case <-r.done:
		return 0, eventlog.ErrRecorderClosed
	default:
		r.logger.WarnContext(ctx, "event queue full, dropping batch",
			"client_ip", clientIP,
			"events", len(events),
			"queue_capacity", r.config.AsyncBuffer,
		)
		return 0, eventlog.ErrQueueFull
	}
}

// Count returns the number of events held by the backend.
func (r *Recorder) Count(ctx context.Context) (int64, error) {
	return r.storage.Count(ctx)
}

// Close drains the queue, then releases anything Open attached to the
// recorder. It is safe to call more than once.
func (r *Recorder) Close() error {
	var firstErr error
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down event recorder")
		close(r.done)
		r.wg.Wait()

		for _, c := range r.closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		r.logger.Info("event recorder shut down complete")
	})
	return firstErr
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case b := <-r.queue:
			r.write(b)

		case <-r.done:
			r.logger.Info("draining event queue before shutdown",
				"pending_batches", len(r.queue),
			)
			for {
				select {
				case b := <-r.queue:
					r.write(b)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(b batch) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, b.events); err != nil {
		r.logger.Error("failed to store event batch",
			"client_ip", b.clientIP,
			"events", len(b.events),
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("event batch stored",
		"client_ip", b.clientIP,
		"events", len(b.events),
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow event log write",
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// Open creates the backend named by cfg.Backend and a recorder that owns
// it. For the file backend a Rotator is started on cfg.RotateSchedule; it
// stops when ctx is cancelled or the recorder is closed.
func Open(ctx context.Context, cfg config.EventLogConfig) (*Recorder, error) {
	recCfg := &Config{
		Enabled:      cfg.Enabled,
		AsyncBuffer:  cfg.BufferSize,
		WriteTimeout: 5 * time.Second,
	}

	var (
		backend eventlog.Storage
		closers []func() error
	)

	switch cfg.Backend {
	case "", "file":
		fs, err := storage.NewFileStorage(storage.FileConfig{
			Path:     cfg.FilePath,
			MaxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
		})
		if err != nil {
			return nil, err
		}
		backend = fs

		if cfg.Enabled && cfg.MaxSizeMB > 0 {
			rotator := storage.NewRotator(fs, cfg.RotateSchedule)
			if err := rotator.Start(ctx); err != nil {
				return nil, fmt.Errorf("failed to start event log rotator: %w", err)
			}
			closers = append(closers, func() error {
				rotator.Stop()
				return nil
			})
		}

	case "sqlite":
		ss, err := storage.NewSQLiteStorage(storage.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		backend = ss

	case "memory":
		backend = storage.NewMemoryStorage()

	default:
		return nil, fmt.Errorf("unsupported event log backend: %s", cfg.Backend)
	}

	r := NewRecorder(backend, recCfg)
	r.closers = append(closers, backend.Close)
	return r, nil
}
