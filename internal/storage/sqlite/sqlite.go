// Package sqlite implements snapshot storage on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/gradewatch/gradewatch/internal/storage"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultLockTimeout bounds the wait for the store's file lock and for
// SQLite's own busy handler.
const DefaultLockTimeout = 30 * time.Second

const metaTimestampKey = "snapshot_timestamp"

// SQLiteStore is the durable snapshot store. A sidecar flock file
// enforces single-process use; two instances on the same path is
// undefined, so the second open fails with storage.ErrLocked.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	fileLock *flock.Flock
}

// New opens (creating if necessary) the store at path with the default
// lock timeout. Use ":memory:" for an ephemeral store in tests.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	return NewWithTimeout(ctx, path, DefaultLockTimeout)
}

// NewWithTimeout opens the store with an explicit lock timeout.
func NewWithTimeout(ctx context.Context, path string, lockTimeout time.Duration) (*SQLiteStore, error) {
	var fileLock *flock.Flock
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}

		fileLock = flock.New(path + ".lock")
		lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
		defer cancel()
		locked, err := fileLock.TryLockContext(lockCtx, 250*time.Millisecond)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
		if !locked {
			return nil, storage.ErrLocked
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		releaseLock(fileLock)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The ncruces driver serializes access per connection; a single
	// connection also makes ":memory:" behave like a shared database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, fileLock: fileLock}
	if err := s.init(ctx, lockTimeout); err != nil {
		_ = db.Close()
		releaseLock(fileLock)
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context, lockTimeout time.Duration) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", lockTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := runMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func releaseLock(l *flock.Flock) {
	if l != nil {
		_ = l.Unlock()
	}
}

// Close closes the database and releases the file lock.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	releaseLock(s.fileLock)
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// LatestTimestamp returns the observation timestamp of the current
// snapshot, or nil when the store has never been populated.
func (s *SQLiteStore) LatestTimestamp(ctx context.Context) (*time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaTimestampKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot timestamp: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp %q: %w", value, err)
	}
	return &ts, nil
}

var _ storage.Store = (*SQLiteStore)(nil)
