package repository

import (
	"context"
	"fmt"

	"dugtong/internal/query"
	"dugtong/internal/rowmap"
	"dugtong/internal/sqlstore"
)

// queryPage runs the count and page statements of q.
func queryPage[T any](ctx context.Context, exec sqlstore.Executor, q query.Query, fn func(rowmap.Record) T) (*Page[T], error) {
	countRS, err := exec.Query(ctx, q.Count, q.CountArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	rs, err := exec.Query(ctx, q.Select, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	return &Page[T]{Items: mapAll(rowmap.Map(rs), fn), Total: scalarInt(countRS)}, nil
}

// queryOne maps the first row, or returns ErrNotFound.
func queryOne[T any](ctx context.Context, exec sqlstore.Executor, fn func(rowmap.Record) T, stmt string, args ...any) (T, error) {
	var zero T
	rs, err := exec.Query(ctx, stmt, args...)
	if err != nil {
		return zero, err
	}
	rec := rowmap.First(rs)
	if rec == nil {
		return zero, ErrNotFound
	}
	return fn(rec), nil
}

// scalarInt first column of the first row.
func scalarInt(rs *rowmap.ResultSet) int {
	rec := rowmap.First(rs)
	if rec == nil || len(rs.Columns) == 0 {
		return 0
	}
	return asInt(rec[rs.Columns[0]])
}

// execAffecting returns ErrNotFound when the statement changed no row.
func execAffecting(ctx context.Context, exec sqlstore.Executor, stmt string, args ...any) error {
	res, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
