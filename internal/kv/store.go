// Package kv provides a durable, ordered byte-key/byte-value store backed by
// SQLite, with prefix scan, atomic batch writes, and schema migration
// support. Blocking database I/O is isolated in this package so callers
// running on an async scheduler never stall on disk.
package kv

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
);
`

// Store is a single-writer, concurrent-reader ordered KV store. The store
// itself guarantees only per-operation (or per-batch) atomicity; higher
// layers coordinate cross-key invariants with their own locks.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite-backed store at path and ensures the schema
// exists. busyTimeoutMS bounds how long a writer waits behind another writer
// before returning SQLITE_BUSY.
func Open(path string, busyTimeoutMS int) (*Store, error) {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer per store; sqlite serializes anyway
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	return value, nil
}

// Put writes (or overwrites) value under key.
func (s *Store) Put(key, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("kv: put: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key []byte) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every key beginning with prefix.
func (s *Store) DeletePrefix(prefix []byte) error {
	hi := prefixUpperBound(prefix)
	var err error
	switch {
	case len(prefix) == 0:
		_, err = s.db.Exec(`DELETE FROM kv`)
	case hi == nil:
		_, err = s.db.Exec(`DELETE FROM kv WHERE key >= ?`, prefix)
	default:
		_, err = s.db.Exec(`DELETE FROM kv WHERE key >= ? AND key < ?`, prefix, hi)
	}
	if err != nil {
		return fmt.Errorf("kv: delete prefix: %w", err)
	}
	return nil
}

// Pair is a single key/value row.
type Pair struct {
	Key   []byte
	Value []byte
}

// ScanPrefix returns every (key, value) pair whose key begins with prefix,
// ordered by key ascending.
func (s *Store) ScanPrefix(prefix []byte) ([]Pair, error) {
	hi := prefixUpperBound(prefix)
	var rows *sql.Rows
	var err error
	switch {
	case len(prefix) == 0:
		rows, err = s.db.Query(`SELECT key, value FROM kv ORDER BY key`)
	case hi == nil:
		rows, err = s.db.Query(`SELECT key, value FROM kv WHERE key >= ? ORDER BY key`, prefix)
	default:
		rows, err = s.db.Query(`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`, prefix, hi)
	}
	if err != nil {
		return nil, fmt.Errorf("kv: scan prefix: %w", err)
	}
	defer rows.Close()

	var out []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("kv: scan prefix row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// prefixUpperBound returns the smallest key strictly greater than every key
// beginning with prefix, or nil if prefix is empty or all 0xFF (unbounded).
func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	hi := make([]byte, len(prefix))
	copy(hi, prefix)
	for i := len(hi) - 1; i >= 0; i-- {
		if hi[i] < 0xFF {
			hi[i]++
			return hi[:i+1]
		}
	}
	return nil
}

// Op is a single operation within a BatchWrite.
type Op struct {
	Delete bool
	Key    []byte
	Value  []byte
}

// BatchWrite applies every op atomically: either all writes in the batch are
// visible, or none are.
func (s *Store) BatchWrite(ops []Op) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("kv: batch begin: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		if op.Delete {
			if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, op.Key); err != nil {
				return fmt.Errorf("kv: batch delete: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, op.Key, op.Value); err != nil {
			return fmt.Errorf("kv: batch put: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kv: batch commit: %w", err)
	}
	return nil
}

// All returns every pair in the store, ordered by key. Used by full-snapshot
// backup and by cache rebuilds on load.
func (s *Store) All() ([]Pair, error) {
	return s.ScanPrefix(nil)
}
