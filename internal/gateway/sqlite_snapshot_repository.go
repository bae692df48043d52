package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mei-diagnostic/internal/domain"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`

// SQLiteSnapshotRepository implements the SnapshotRepository interface on a
// single SQLite file. Each key holds exactly one payload.
type SQLiteSnapshotRepository struct {
	db   *sql.DB
	path string
}

// NewSQLiteSnapshotRepository opens (creating if needed) the database at path.
func NewSQLiteSnapshotRepository(path string) (*SQLiteSnapshotRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent runs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return &SQLiteSnapshotRepository{db: db, path: path}, nil
}

// Path returns the database file path.
func (r *SQLiteSnapshotRepository) Path() string {
	return r.path
}

// Close closes the database.
func (r *SQLiteSnapshotRepository) Close() error {
	return r.db.Close()
}

// Get returns the payload stored under key.
func (r *SQLiteSnapshotRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	return []byte(payload), nil
}

// Put replaces the payload stored under key.
func (r *SQLiteSnapshotRepository) Put(ctx context.Context, key string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SQLiteSnapshotRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}
