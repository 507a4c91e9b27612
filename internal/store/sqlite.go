package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema version tracking:
// 1 - One table per collection (id, payload, digest, updated_at)
const currentSchemaVersion = 1

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteBackend stores each collection in its own SQLite table.
//
// The database is opened lazily on first use. The connection is configured
// with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - a single connection, so ":memory:" databases persist across calls
//
// An open that fails is not cached: the next call tries again.
type SQLiteBackend struct {
	path string
	now  func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend returns a backend for the database file at path.
// Nothing is opened until the first operation.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path, now: time.Now}
}

// Path returns the database path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// conn returns the open database, opening and provisioning it if needed.
func (b *SQLiteBackend) conn(ctx context.Context) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return b.db, nil
	}
	db, err := openSQLite(ctx, b.path)
	if err != nil {
		return nil, err
	}
	b.db = db
	return db, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}
	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates missing collection tables and stamps user_version.
// Idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	for _, name := range Collections {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id         TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			digest     TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`, name)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if version < currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Put upserts a record. The row is rewritten only when the digest changed.
func (b *SQLiteBackend) Put(ctx context.Context, collection string, rec RawRecord) (bool, error) {
	const op = "put"
	if !ValidCollection(collection) {
		return false, newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	db, err := b.conn(ctx)
	if err != nil {
		return false, newCacheError(ErrCodeUnavailable, collection, op, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]q (id, payload, digest, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			digest = excluded.digest,
			updated_at = excluded.updated_at
		WHERE %[1]q.digest <> excluded.digest
	`, collection)
	res, err := db.ExecContext(ctx, query, rec.ID, string(rec.Payload), rec.Digest, b.now().UnixMilli())
	if err != nil {
		return false, newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return n > 0, nil
}

// All scans a collection ordered by id.
func (b *SQLiteBackend) All(ctx context.Context, collection string) ([]RawRecord, error) {
	const op = "get_all"
	if !ValidCollection(collection) {
		return nil, newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	db, err := b.conn(ctx)
	if err != nil {
		return nil, newCacheError(ErrCodeUnavailable, collection, op, err)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, payload, digest FROM %q ORDER BY id COLLATE BINARY ASC`, collection))
	if err != nil {
		return nil, newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	defer rows.Close()

	var out []RawRecord
	for rows.Next() {
		var rec RawRecord
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.Digest); err != nil {
			return nil, newCacheError(ErrCodeTxFailed, collection, op, err)
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return out, nil
}

// Delete removes a record if present.
func (b *SQLiteBackend) Delete(ctx context.Context, collection, id string) error {
	const op = "delete"
	if !ValidCollection(collection) {
		return newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	db, err := b.conn(ctx)
	if err != nil {
		return newCacheError(ErrCodeUnavailable, collection, op, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, collection), id); err != nil {
		return newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return nil
}

// Clear removes every record in a collection.
func (b *SQLiteBackend) Clear(ctx context.Context, collection string) error {
	const op = "clear"
	if !ValidCollection(collection) {
		return newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	db, err := b.conn(ctx)
	if err != nil {
		return newCacheError(ErrCodeUnavailable, collection, op, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, collection)); err != nil {
		return newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return nil
}

// Ping opens the database if needed.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	db, err := b.conn(ctx)
	if err != nil {
		return newCacheError(ErrCodeUnavailable, "", "ping", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return newCacheError(ErrCodeUnavailable, "", "ping", err)
	}
	return nil
}

// Close closes the database if it was opened. A later call reopens it.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (b *SQLiteBackend) verifyPragma(ctx context.Context, name, expected string) error {
	db, err := b.conn(ctx)
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
