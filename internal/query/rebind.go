package query

import (
	"strconv"
	"strings"
)

// Dialect SQL flavour of the backing store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites `?` placeholders to `$1..$n` for postgres. Question marks inside
// single-quoted literals are left alone. Other dialects are returned unchanged.
func Rebind(dialect Dialect, sql string) string {
	if dialect != DialectPostgres || !strings.Contains(sql, "?") {
		return sql
	}

	var sb strings.Builder
	sb.Grow(len(sql) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Placeholders counts `?` placeholders outside quoted literals.
func Placeholders(sql string) int {
	n := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			inQuote = !inQuote
		case '?':
			if !inQuote {
				n++
			}
		}
	}
	return n
}
