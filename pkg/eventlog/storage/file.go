package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"mercator-hq/courier/pkg/eventlog"
)

// BackupSuffix is appended to the file name of a rotated event log.
const BackupSuffix = ".bak"

// FileConfig configures FileStorage.
type FileConfig struct {
	// Path is the JSONL file events are appended to.
	Path string

	// MaxBytes rotates the file once it grows beyond this size.
	// Zero disables rotation.
	MaxBytes int64
}

// FileStorage appends events to a JSON lines file.
type FileStorage struct {
	config FileConfig
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStorage creates a file backend. The parent directory is created
// if needed; the file itself is created on first write.
func NewFileStorage(config FileConfig) (*FileStorage, error) {
	if config.Path == "" {
		return nil, eventlog.NewStorageError("file", "open", errors.New("path cannot be empty"))
	}
	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eventlog.NewStorageError("file", "open", err)
		}
	}

	return &FileStorage{
		config: config,
		logger: slog.Default().With("component", "eventlog.storage.file"),
	}, nil
}

// Path returns the file path.
func (s *FileStorage) Path() string {
	return s.config.Path
}

// Store appends events, one JSON object per line, rotating first if the
// file is over its size limit.
func (s *FileStorage) Store(ctx context.Context, events []*eventlog.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.rotateLocked(); err != nil {
		// A failed rotation must not lose the batch.
		s.logger.ErrorContext(ctx, "event log rotation failed", "path", s.config.Path, "error", err)
	}

	f, err := os.OpenFile(s.config.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eventlog.NewStorageError("file", "store", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return eventlog.NewStorageError("file", "store", err)
		}
	}
	if err := w.Flush(); err != nil {
		return eventlog.NewStorageError("file", "store", err)
	}
	return nil
}

// Rotate renames the file to <file>.bak when it exceeds MaxBytes.
func (s *FileStorage) Rotate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

func (s *FileStorage) rotateLocked() (bool, error) {
	if s.config.MaxBytes <= 0 {
		return false, nil
	}

	info, err := os.Stat(s.config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eventlog.NewStorageError("file", "rotate", err)
	}
	if info.Size() <= s.config.MaxBytes {
		return false, nil
	}

	backup := s.config.Path + BackupSuffix
	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, eventlog.NewStorageError("file", "rotate", err)
	}
	if err := os.Rename(s.config.Path, backup); err != nil {
		return false, eventlog.NewStorageError("file", "rotate", err)
	}

	s.logger.Info("rotated event log",
		"path", s.config.Path,
		"backup", backup,
		"size_bytes", info.Size(),
	)
	return true, nil
}

// Count returns the number of lines in the current file. Rotated backups
// are not counted.
func (s *FileStorage) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, eventlog.NewStorageError("file", "count", err)
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, eventlog.NewStorageError("file", "count", err)
	}
	return n, nil
}

// Close implements eventlog.Storage. FileStorage holds no open handles.
func (s *FileStorage) Close() error {
	return nil
}
