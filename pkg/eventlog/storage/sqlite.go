package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/courier/pkg/eventlog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	received_at INTEGER NOT NULL,
	client_ip TEXT NOT NULL,
	event TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
`

// SQLiteConfig configures SQLiteStorage.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStorage stores events in an SQLite database.
type SQLiteStorage struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	closeOnce  sync.Once
	logger     *slog.Logger
}

// NewSQLiteStorage opens (and if needed creates) the database at
// config.Path.
func NewSQLiteStorage(config SQLiteConfig) (*SQLiteStorage, error) {
	if config.Path == "" {
		return nil, eventlog.NewStorageError("sqlite", "open", errors.New("db path cannot be empty"))
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if dir := filepath.Dir(config.Path); dir != "." && config.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eventlog.NewStorageError("sqlite", "open", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		config.Path, config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eventlog.NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eventlog.NewStorageError("sqlite", "create_schema", err)
	}

	insertStmt, err := db.Prepare(`INSERT INTO events (id, received_at, client_ip, event) VALUES (?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, eventlog.NewStorageError("sqlite", "prepare", err)
	}

	s := &SQLiteStorage{
		db:         db,
		insertStmt: insertStmt,
		logger:     slog.Default().With("component", "eventlog.storage.sqlite"),
	}
	s.logger.Info("SQLite event log initialized", "path", config.Path)
	return s, nil
}

// Store inserts a batch in one transaction.
func (s *SQLiteStorage) Store(ctx context.Context, events []*eventlog.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.insertStmt)
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.Timestamp.UnixNano(), ev.ClientIP, string(ev.Event)); err != nil {
			return eventlog.NewStorageError("sqlite", "store", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return eventlog.NewStorageError("sqlite", "commit", err)
	}
	return nil
}

// Count returns the number of stored events.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, eventlog.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Recent returns up to limit events, newest first.
func (s *SQLiteStorage) Recent(ctx context.Context, limit int) ([]*eventlog.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, client_ip, event FROM events ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eventlog.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var out []*eventlog.Event
	for rows.Next() {
		var (
			ev         eventlog.Event
			receivedAt int64
			body       string
		)
		if err := rows.Scan(&ev.ID, &receivedAt, &ev.ClientIP, &body); err != nil {
			return nil, eventlog.NewStorageError("sqlite", "query", err)
		}
		ev.Timestamp = time.Unix(0, receivedAt)
		ev.Event = []byte(body)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eventlog.NewStorageError("sqlite", "query", err)
	}
	return out, nil
}

// Close closes the database. It is idempotent.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.insertStmt.Close()
		err = s.db.Close()
	})
	return err
}
