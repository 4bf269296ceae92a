package embedcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/0xcro3dile/hybridrag-go/internal/adapters/vectordb"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps cached vectors in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

// initSchema creates the necessary tables.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embed_cache (
		hash TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached vector for hash.
func (s *SQLiteStore) Get(ctx context.Context, hash string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT vector FROM embed_cache WHERE hash = ?", hash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}
	vec, err := vectordb.DecodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	return vec, len(vec) > 0, nil
}

// PutMany stores entries in one transaction. Existing hashes are kept.
func (s *SQLiteStore) PutMany(ctx context.Context, entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO embed_cache (hash, vector) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for h, v := range entries {
		if _, err := stmt.ExecContext(ctx, h, vectordb.EncodeVector(v)); err != nil {
			return fmt.Errorf("inserting cache entry: %w", err)
		}
	}
	return tx.Commit()
}

// Count returns the number of cached vectors.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embed_cache").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
