package tushare

import "fmt"

// Table is a column-oriented API result.
type Table struct {
	Fields  []string `json:"fields"`
	Items   [][]any  `json:"items"`
	HasMore bool     `json:"has_more"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Items)
}

// HasField reports whether the result carries the named column.
func (t *Table) HasField(name string) bool {
	if t == nil {
		return false
	}
	for _, f := range t.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Rows converts the table into one map per row keyed by field name.
// Short rows leave their trailing fields unset.
func (t *Table) Rows() []map[string]any {
	if t == nil {
		return nil
	}
	rows := make([]map[string]any, 0, len(t.Items))
	for _, item := range t.Items {
		row := make(map[string]any, len(t.Fields))
		for i, f := range t.Fields {
			if i < len(item) {
				row[f] = item[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// APIError is a non-zero result code reported by Tushare, such as an
// invalid token or an exhausted quota.
type APIError struct {
	API       string
	Code      int
	Msg       string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tushare %s: code %d: %s", e.API, e.Code, e.Msg)
}
