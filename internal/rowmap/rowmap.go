// Package rowmap normalizes columnar query results into keyed records.
package rowmap

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Record one row keyed by column name.
type Record map[string]any

// ResultSet columnar result. Each element of Rows is either a positional []any aligned with
// Columns or an already-keyed map.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []any    `json:"rows"`
}

// Map converts rs into records. Positional rows are keyed by Columns; keyed rows pass through.
// Missing or malformed input yields an empty slice.
func Map(rs *ResultSet) []Record {
	if rs == nil || len(rs.Rows) == 0 {
		return []Record{}
	}

	out := make([]Record, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		switch r := row.(type) {
		case Record:
			out = append(out, r)
		case map[string]any:
			out = append(out, Record(r))
		case []any:
			rec := make(Record, len(rs.Columns))
			for j, col := range rs.Columns {
				if j < len(r) {
					rec[col] = r[j]
				} else {
					rec[col] = nil
				}
			}
			out = append(out, rec)
		}
	}
	return out
}

// First returns the first mapped record, or nil.
func First(rs *ResultSet) Record {
	records := Map(rs)
	if len(records) == 0 {
		return nil
	}
	return records[0]
}

// FromSQLRows drains rows into a ResultSet. []byte values are copied into strings.
// rows is closed before returning.
func FromSQLRows(rows *sql.Rows) (*ResultSet, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{Columns: cols, Rows: []any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs, rows.Err()
}

// Decode parses the JSON shape {"columns": [...], "rows": [...]}. JSON numbers stay
// json.Number so integer ids survive decoding.
func Decode(data []byte) (*ResultSet, error) {
	var raw struct {
		Columns []string          `json:"columns"`
		Rows    []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}

	rs := &ResultSet{Columns: raw.Columns, Rows: make([]any, 0, len(raw.Rows))}
	for _, r := range raw.Rows {
		var v any
		if err := decodeNumber(r, &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		switch row := v.(type) {
		case []any:
			rs.Rows = append(rs.Rows, row)
		case map[string]any:
			rs.Rows = append(rs.Rows, row)
		}
	}
	return rs, nil
}
