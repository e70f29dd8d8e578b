package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    expires_at INTEGER
)`

// SQLiteKV persists keys in a kv table of an embedded database. Used on devices without redis.
type SQLiteKV struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteKV creates the kv table when missing.
func NewSQLiteKV(ctx context.Context, db *sql.DB) (*SQLiteKV, error) {
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteKV{db: db, now: time.Now}, nil
}

var _ KV = (*SQLiteKV)(nil)

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, error) {
	var (
		value     string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	if expiresAt.Valid && expiresAt.Int64 <= s.now().UnixMilli() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return "", ErrMiss
	}
	return value, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	return err
}

func (s *SQLiteKV) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return nil
}
