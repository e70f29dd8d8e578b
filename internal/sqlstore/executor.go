// Package sqlstore runs parameterized SQL against the configured store and returns
// columnar results for rowmap.
package sqlstore

import (
	"context"
	"reflect"
	"time"

	"dugtong/internal/query"
	"dugtong/internal/rowmap"
)

// TimeLayout fixed-width UTC layout used for TEXT timestamp columns; it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Result outcome of a statement without rows.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Executor runs statements written with `?` placeholders.
type Executor interface {
	Dialect() query.Dialect
	Query(ctx context.Context, sql string, args ...any) (*rowmap.ResultSet, error)
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
	// WithTx runs fn inside one transaction; fn's error rolls it back.
	WithTx(ctx context.Context, fn func(tx Executor) error) error
}

// FormatTime renders t for TEXT timestamp columns.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// normalizeArgs converts Go values into what the store's INTEGER/TEXT columns expect:
// bools become 0/1, pointers are dereferenced and timestamps become TimeLayout strings
// unless the driver handles time.Time natively.
func normalizeArgs(args []any, nativeTime bool) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = normalizeArg(a, nativeTime)
	}
	return out
}

func normalizeArg(a any, nativeTime bool) any {
	switch v := a.(type) {
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		if nativeTime {
			return v.UTC()
		}
		return FormatTime(v)
	case *time.Time:
		if v == nil {
			return nil
		}
		return normalizeArg(*v, nativeTime)
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case *int:
		if v == nil {
			return nil
		}
		return int64(*v)
	}

	// named string/int types such as domain enums
	rv := reflect.ValueOf(a)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalizeArg(rv.Elem().Interface(), nativeTime)
	}
	return a
}
