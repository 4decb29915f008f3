package provider

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/markqiu/openbb-tushare/internal/datefmt"
)

// Kind selects the conversion applied to a mapped value.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindFloat
	KindInt
	KindDate    // vendor YYYYMMDD to YYYY-MM-DD
	KindPercent // vendor percent points to a fraction
)

// Field maps one vendor column onto one host field.
type Field struct {
	From string
	To   string
	Kind Kind
}

// Mapping is a declarative per-model field table. Columns it does not name
// are dropped.
type Mapping []Field

// F is shorthand for a Field.
func F(from, to string, kind Kind) Field {
	return Field{From: from, To: to, Kind: kind}
}

// Same maps a column onto a host field of the same name.
func Same(name string, kind Kind) Field {
	return Field{From: name, To: name, Kind: kind}
}

// VendorFields lists the vendor columns the mapping reads, in order, for
// the API fields parameter.
func (m Mapping) VendorFields() []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for _, f := range m {
		if _, ok := seen[f.From]; ok {
			continue
		}
		seen[f.From] = struct{}{}
		out = append(out, f.From)
	}
	return out
}

// Record maps a single row. A row already keyed by host names (for
// example one read back from the cache) is accepted too: when From is
// absent the To key is used.
func (m Mapping) Record(row Row) Record {
	rec := make(Record, len(m))
	for _, f := range m {
		v, ok := row[f.From]
		if !ok {
			v, ok = row[f.To]
		}
		if !ok {
			continue
		}
		rec[f.To] = convert(v, f.Kind)
	}
	return rec
}

// Apply maps every row.
func (m Mapping) Apply(rows []Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, m.Record(r))
	}
	return out
}

func convert(v any, kind Kind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case KindString:
		switch x := v.(type) {
		case string:
			return x
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
	case KindFloat:
		if f, ok := toFloat(v); ok {
			return f
		}
		return nil
	case KindInt:
		if f, ok := toFloat(v); ok {
			return int64(math.Round(f))
		}
		return nil
	case KindPercent:
		if f, ok := toFloat(v); ok {
			return f / 100
		}
		return nil
	case KindDate:
		return toDate(v)
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// toDate renders vendor dates as YYYY-MM-DD; values it cannot read pass
// through unchanged.
func toDate(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(datefmt.Layout)
	case string:
		return datefmt.FromVendor(x)
	case float64:
		return datefmt.FromVendor(strconv.FormatFloat(x, 'f', 0, 64))
	}
	return v
}
