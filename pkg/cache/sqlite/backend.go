// Package sqlite stores the response cache snapshot in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/leadchat/pkg/cache"
)

// Backend is a cache.Backend keeping the snapshot in a single-row table.
type Backend struct {
	db   *sql.DB
	path string
}

const createSnapshotTable = `
CREATE TABLE IF NOT EXISTS cache_snapshot (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	data BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Backend, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createSnapshotTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Backend{db: db, path: dbPath}, nil
}

func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM cache_snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

func (b *Backend) Save(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_snapshot (id, data, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)`,
		data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_snapshot`); err != nil {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Size is the length of the stored blob, not the database file.
func (b *Backend) Size(ctx context.Context) (int64, error) {
	var size int64
	err := b.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(data)), 0) FROM cache_snapshot`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("snapshot size: %w", err)
	}
	return size, nil
}

func (b *Backend) Location() string { return "sqlite:" + b.path }

// Close releases the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}
