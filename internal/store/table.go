package store

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the storage class of a cached column.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeReal    ColumnType = "REAL"
	TypeInteger ColumnType = "INTEGER"
)

// Column declares one typed column of a cached table.
type Column struct {
	Name string
	Type ColumnType
}

// Table declares a cached dataset: its name, ordered columns and the column
// whose values are unique across rows.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) bool { return identPattern.MatchString(s) }

// quote renders an identifier for SQL. Callers validate identifiers first.
func quote(ident string) string { return `"` + ident + `"` }

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a declared column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks the declaration itself.
func (t Table) Validate() error {
	if !validIdent(t.Name) {
		return &CacheSchemaError{Table: t.Name, Reason: "invalid table name"}
	}
	if len(t.Columns) == 0 {
		return &CacheSchemaError{Table: t.Name, Reason: "no columns declared"}
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if !validIdent(c.Name) {
			return &CacheSchemaError{Table: t.Name, Column: c.Name, Reason: "invalid column name"}
		}
		switch c.Type {
		case TypeText, TypeReal, TypeInteger:
		default:
			return &CacheSchemaError{Table: t.Name, Column: c.Name, Reason: fmt.Sprintf("unsupported type %q", c.Type)}
		}
		if _, dup := seen[c.Name]; dup {
			return &CacheSchemaError{Table: t.Name, Column: c.Name, Reason: "duplicate column"}
		}
		seen[c.Name] = struct{}{}
	}
	if _, ok := seen[t.PrimaryKey]; !ok {
		return &CacheSchemaError{Table: t.Name, Column: t.PrimaryKey, Reason: "primary key is not a declared column"}
	}
	return nil
}

// checkRows rejects rows carrying undeclared columns or no primary key.
func (t Table) checkRows(rows []Row) error {
	for _, r := range rows {
		for name := range r {
			if _, ok := t.Column(name); !ok {
				return &CacheSchemaError{Table: t.Name, Column: name, Reason: "column not in declared schema"}
			}
		}
		if r[t.PrimaryKey] == nil {
			return &CacheSchemaError{Table: t.Name, Column: t.PrimaryKey, Reason: "missing primary key value"}
		}
	}
	return nil
}

// Project keeps only the declared columns of row, coerced to their types.
func (t Table) Project(row map[string]any) Row {
	out := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		if v, ok := row[c.Name]; ok {
			out[c.Name] = coerce(v, c.Type)
		}
	}
	return out
}

func (t Table) createSQL() string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = quote(c.Name) + " " + string(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		quote(t.Name), strings.Join(defs, ", "), quote(t.PrimaryKey))
}

func (t Table) insertSQL() string {
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quote(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// coerce converts vendor values (JSON numbers arrive as float64) into the
// Go type matching the column's storage class.
func coerce(v any, typ ColumnType) any {
	if v == nil {
		return nil
	}
	switch typ {
	case TypeInteger:
		switch x := v.(type) {
		case float64:
			if x == math.Trunc(x) {
				return int64(x)
			}
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case bool:
			if x {
				return int64(1)
			}
			return int64(0)
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		}
	case TypeReal:
		switch x := v.(type) {
		case int:
			return float64(x)
		case int64:
			return float64(x)
		case float32:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case TypeText:
		switch x := v.(type) {
		case string:
			return x
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case time.Time:
			return x.Format(time.RFC3339)
		case fmt.Stringer:
			return x.String()
		default:
			return fmt.Sprint(x)
		}
	}
	return v
}
