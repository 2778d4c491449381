package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a KeyValueStore that several processes on one host can share.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at path and purges expired rows.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Purge(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to purge expired rows: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB,
		expires_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create store tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixNano()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt != 0 && expiresAt <= s.now().UnixNano() {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, s.expiry(ttl))
	return err
}

func (s *SQLiteStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := s.now().UnixNano()
	var count, expiresAt int64
	err = tx.QueryRowContext(ctx, `SELECT count, expires_at FROM counters WHERE key = ?`, key).Scan(&count, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows) || (err == nil && expiresAt != 0 && expiresAt <= now):
		count, expiresAt = 0, s.expiry(window)
	case err != nil:
		return 0, err
	}
	count++

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO counters (key, count, expires_at) VALUES (?, ?, ?)`,
		key, count, expiresAt); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Purge deletes expired rows.
func (s *SQLiteStore) Purge(ctx context.Context) error {
	now := s.now().UnixNano()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at != 0 AND expires_at <= ?`, now); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM counters WHERE expires_at != 0 AND expires_at <= ?`, now)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
