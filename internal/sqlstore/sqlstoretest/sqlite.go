// Package sqlstoretest provides a migrated sqlite store for tests.
package sqlstoretest

import (
	"context"
	"path/filepath"
	"testing"

	"dugtong/common/config"
	"dugtong/common/database"
	"dugtong/internal/query"
	"dugtong/internal/sqlstore"

	"go.uber.org/zap"
)

// NewSQLite opens a fresh sqlite file under t.TempDir and applies the schema.
func NewSQLite(t testing.TB) *sqlstore.DBExecutor {
	t.Helper()

	db, err := database.NewSQLiteDB(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "dugtong-test.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	exec := sqlstore.NewDBExecutor(db, query.DialectSQLite, zap.NewNop())
	if err := sqlstore.Migrate(context.Background(), exec); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return exec
}
