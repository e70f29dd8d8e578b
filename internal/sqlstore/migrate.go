package sqlstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"dugtong/internal/query"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Schema returns the DDL for dialect.
func Schema(dialect query.Dialect) string {
	if dialect == query.DialectPostgres {
		return schemaPostgres
	}
	return schemaSQLite
}

// Migrate creates any missing tables and indexes. Statements are idempotent.
func Migrate(ctx context.Context, exec Executor) error {
	for i, stmt := range splitStatements(Schema(exec.Dialect())) {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, part := range strings.Split(ddl, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
