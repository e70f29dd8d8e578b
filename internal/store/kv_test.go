package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	kv, err := NewSQLiteKV(context.Background(), db)
	require.NoError(t, err)
	return kv
}

func TestKVImplementations(t *testing.T) {
	impls := map[string]func(t *testing.T) KV{
		"memory": func(t *testing.T) KV { return NewMemoryKV() },
		"sqlite": func(t *testing.T) KV { return newSQLiteKV(t) },
	}
	for name, mk := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := mk(t)

			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, kv.Set(ctx, "auth:token", "abc", 0))
			require.NoError(t, kv.Set(ctx, "auth:refresh", "def", 0))
			require.NoError(t, kv.Set(ctx, "queue:chat", "[]", 0))
			v, err := kv.Get(ctx, "auth:token")
			require.NoError(t, err)
			assert.Equal(t, "abc", v)

			require.NoError(t, kv.Set(ctx, "auth:token", "xyz", 0))
			v, _ = kv.Get(ctx, "auth:token")
			assert.Equal(t, "xyz", v)

			v, err = kv.Get(ctx, "queue:chat")
			require.NoError(t, err)
			assert.Equal(t, "[]", v)

			require.NoError(t, kv.Delete(ctx, "auth:token", "auth:refresh"))
			_, err = kv.Get(ctx, "auth:token")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestMemoryKVExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	_, err := kv.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSQLiteKVExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := newSQLiteKV(t)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	now = now.Add(2 * time.Minute)
	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	var n int
	require.NoError(t, kv.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Zero(t, n)
}
