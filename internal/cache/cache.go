// Package cache persists extracted import statements in SQLite so unchanged
// files are not parsed again.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pierrec/lz4/v4"

	"pyimports/internal/scanner"
)

const schema = `
CREATE TABLE IF NOT EXISTS statements (
	path       TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	raw_size   INTEGER NOT NULL,
	compressed INTEGER NOT NULL,
	payload    BLOB NOT NULL
)`

// Store is a scanner.Cache backed by a SQLite database. Errors are logged and
// treated as misses.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the cache database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise cache %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached statements of path when they were stored for the
// same content hash.
func (s *Store) Get(path, hash string) ([]scanner.Statement, bool) {
	var (
		storedHash string
		rawSize    int
		compressed bool
		payload    []byte
	)
	err := s.db.QueryRow(
		`SELECT hash, raw_size, compressed, payload FROM statements WHERE path = ?`, path,
	).Scan(&storedHash, &rawSize, &compressed, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache lookup failed", "path", path, "error", err)
		return nil, false
	}
	if storedHash != hash {
		return nil, false
	}

	stmts, err := decode(payload, rawSize, compressed)
	if err != nil {
		s.logger.Warn("discarding corrupt cache entry", "path", path, "error", err)
		return nil, false
	}
	return stmts, true
}

// Put stores the statements extracted from path.
func (s *Store) Put(path, hash string, stmts []scanner.Statement) {
	raw, err := json.Marshal(stmts)
	if err != nil {
		s.logger.Warn("failed to encode statements", "path", path, "error", err)
		return
	}
	payload, compressed := compress(raw)

	_, err = s.db.Exec(
		`INSERT INTO statements (path, hash, raw_size, compressed, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, raw_size = excluded.raw_size,
		 compressed = excluded.compressed, payload = excluded.payload`,
		path, hash, len(raw), compressed, payload,
	)
	if err != nil {
		s.logger.Warn("cache store failed", "path", path, "error", err)
	}
}

// Len returns the number of cached files.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM statements`).Scan(&n)
	return n, err
}

// compress returns the lz4 block of raw, or raw itself when it does not
// compress.
func compress(raw []byte) ([]byte, bool) {
	buf := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, buf, nil)
	if err != nil || n == 0 || n >= len(raw) {
		return raw, false
	}
	return buf[:n], true
}

func decode(payload []byte, rawSize int, compressed bool) ([]scanner.Statement, error) {
	raw := payload
	if compressed {
		raw = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress: %w", err)
		}
		if n != rawSize {
			return nil, fmt.Errorf("decompressed %d bytes, want %d", n, rawSize)
		}
	}

	var stmts []scanner.Statement
	if err := json.Unmarshal(raw, &stmts); err != nil {
		return nil, fmt.Errorf("failed to decode statements: %w", err)
	}
	return stmts, nil
}
