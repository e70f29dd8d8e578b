package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"dugtong/internal/query"
	"dugtong/internal/rowmap"

	"go.uber.org/zap"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DBExecutor runs statements on a database/sql handle (postgres or sqlite).
type DBExecutor struct {
	db      *sql.DB
	dialect query.Dialect
	logger  *zap.Logger
}

// NewDBExecutor wraps db. dialect controls placeholder rebinding and time handling.
func NewDBExecutor(db *sql.DB, dialect query.Dialect, logger *zap.Logger) *DBExecutor {
	return &DBExecutor{db: db, dialect: dialect, logger: logger}
}

// 确保实现了接口
var _ Executor = (*DBExecutor)(nil)

func (e *DBExecutor) Dialect() query.Dialect { return e.dialect }

// DB exposes the underlying handle.
func (e *DBExecutor) DB() *sql.DB { return e.db }

func (e *DBExecutor) Query(ctx context.Context, stmt string, args ...any) (*rowmap.ResultSet, error) {
	return runQuery(ctx, e.db, e.dialect, stmt, args)
}

func (e *DBExecutor) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	return runExec(ctx, e.db, e.dialect, stmt, args)
}

func (e *DBExecutor) WithTx(ctx context.Context, fn func(tx Executor) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txExecutor{tx: tx, dialect: e.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txExecutor struct {
	tx      *sql.Tx
	dialect query.Dialect
}

func (t *txExecutor) Dialect() query.Dialect { return t.dialect }

func (t *txExecutor) Query(ctx context.Context, stmt string, args ...any) (*rowmap.ResultSet, error) {
	return runQuery(ctx, t.tx, t.dialect, stmt, args)
}

func (t *txExecutor) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	return runExec(ctx, t.tx, t.dialect, stmt, args)
}

// WithTx joins the enclosing transaction.
func (t *txExecutor) WithTx(_ context.Context, fn func(tx Executor) error) error {
	return fn(t)
}

func runQuery(ctx context.Context, q queryer, dialect query.Dialect, stmt string, args []any) (*rowmap.ResultSet, error) {
	rows, err := q.QueryContext(ctx, query.Rebind(dialect, stmt), normalizeArgs(args, dialect == query.DialectPostgres)...)
	if err != nil {
		return nil, err
	}
	return rowmap.FromSQLRows(rows)
}

func runExec(ctx context.Context, q queryer, dialect query.Dialect, stmt string, args []any) (Result, error) {
	res, err := q.ExecContext(ctx, query.Rebind(dialect, stmt), normalizeArgs(args, dialect == query.DialectPostgres)...)
	if err != nil {
		return Result{}, err
	}
	var out Result
	out.RowsAffected, _ = res.RowsAffected()
	if dialect != query.DialectPostgres {
		out.LastInsertID, _ = res.LastInsertId()
	}
	return out, nil
}
