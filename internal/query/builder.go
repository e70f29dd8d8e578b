// Package query builds filtered, paginated SELECT statements with positional placeholders.
package query

import (
	"fmt"
	"strings"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 50

// Query a page statement and its matching COUNT(*) statement.
// Both share the same WHERE clause; Args additionally carries LIMIT and OFFSET.
type Query struct {
	Select    string
	Count     string
	Args      []any
	CountArgs []any
	Limit     int
	Offset    int
}

// Builder accumulates predicates for one table. Predicates are joined with AND.
type Builder struct {
	table    string
	columns  []string
	where    []string
	args     []any
	orderBy  string
	page     int
	pageSize int
}

// New starts a builder selecting columns from table.
func New(table string, columns ...string) *Builder {
	return &Builder{
		table:    table,
		columns:  columns,
		orderBy:  "created_at DESC",
		pageSize: DefaultPageSize,
	}
}

// Where appends a raw predicate. It is always applied; args must match its placeholders.
func (b *Builder) Where(predicate string, args ...any) *Builder {
	b.where = append(b.where, predicate)
	b.args = append(b.args, args...)
	return b
}

// Eq adds `column = ?` when value is non-empty.
func (b *Builder) Eq(column, value string) *Builder {
	if value == "" {
		return b
	}
	return b.Where(column+" = ?", value)
}

// Like adds `column LIKE ?` wildcarded on both sides when text is non-empty.
func (b *Builder) Like(column, text string) *Builder {
	if text == "" {
		return b
	}
	return b.Where(column+" LIKE ?", "%"+text+"%")
}

// Search ORs a LIKE across columns using one wildcarded parameter repeated per column.
func (b *Builder) Search(text string, columns ...string) *Builder {
	text = strings.TrimSpace(text)
	if text == "" || len(columns) == 0 {
		return b
	}
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		parts[i] = c + " LIKE ?"
		args[i] = "%" + text + "%"
	}
	return b.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// OrderBy replaces the default `created_at DESC` ordering.
func (b *Builder) OrderBy(expr string) *Builder {
	b.orderBy = expr
	return b
}

// Page sets 0-based page and size. Negative pages clamp to 0, non-positive sizes to DefaultPageSize.
func (b *Builder) Page(page, pageSize int) *Builder {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	b.page = page
	b.pageSize = pageSize
	return b
}

// WhereClause returns " WHERE ..." or "" when there are no predicates.
func (b *Builder) WhereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// Predicates number of predicates added so far.
func (b *Builder) Predicates() int {
	return len(b.where)
}

// Build renders the page and count statements.
func (b *Builder) Build() Query {
	where := b.WhereClause()
	cols := "*"
	if len(b.columns) > 0 {
		cols = strings.Join(b.columns, ", ")
	}

	offset := b.page * b.pageSize

	countArgs := make([]any, len(b.args))
	copy(countArgs, b.args)
	args := make([]any, 0, len(b.args)+2)
	args = append(args, b.args...)
	args = append(args, b.pageSize, offset)

	return Query{
		Select:    fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ? OFFSET ?", cols, b.table, where, b.orderBy),
		Count:     fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.table, where),
		Args:      args,
		CountArgs: countArgs,
		Limit:     b.pageSize,
		Offset:    offset,
	}
}
