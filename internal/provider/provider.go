// Package provider defines how a data model plugs into the host: a query is
// built from raw params, data is extracted with the caller's credentials,
// and vendor rows are mapped into host records.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyData signals that neither the vendor nor the cache has data for
// the request. Hosts treat it as "no data", not as a failure.
var ErrEmptyData = errors.New("no data found")

// CredentialAPIKey is the credential holding the Tushare token.
const CredentialAPIKey = "tushare_api_key"

// Row is one vendor row keyed by vendor column name.
type Row = map[string]any

// Record is one output row keyed by host field name.
type Record map[string]any

// Credentials carries resolved secrets by name.
type Credentials map[string]string

// APIKey returns the Tushare token, or "" when none was supplied.
func (c Credentials) APIKey() string {
	if c == nil {
		return ""
	}
	return c[CredentialAPIKey]
}

// ParamError reports a query parameter that is present but unusable.
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid '%s': %s", e.Field, e.Reason)
}

// Params is the raw parameter mapping a query is built from.
type Params map[string]any

// Has reports whether key is set to a non-nil value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Value returns the raw value of key, or nil.
func (p Params) Value(key string) any {
	return p[key]
}

// String returns key rendered as a string and whether it was set.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// Bool parses key as a boolean, returning def when unset.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		if x == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(x)
		if err != nil {
			return def, &ParamError{Field: key, Reason: fmt.Sprintf("expected a boolean, got %q", x)}
		}
		return b, nil
	default:
		return def, &ParamError{Field: key, Reason: fmt.Sprintf("expected a boolean, got %T", v)}
	}
}

// Int parses key as an integer, returning def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return def, &ParamError{Field: key, Reason: fmt.Sprintf("expected an integer, got %v", x)}
		}
		return int(x), nil
	case string:
		if x == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return def, &ParamError{Field: key, Reason: fmt.Sprintf("expected an integer, got %q", x)}
		}
		return n, nil
	default:
		return def, &ParamError{Field: key, Reason: fmt.Sprintf("expected an integer, got %T", v)}
	}
}

// Extra returns the params not named in known, untouched.
func (p Params) Extra(known ...string) map[string]any {
	skip := make(map[string]struct{}, len(known))
	for _, k := range known {
		skip[k] = struct{}{}
	}
	out := make(map[string]any)
	for k, v := range p {
		if _, ok := skip[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Fetcher is the three-stage contract every model implements. Q is the
// model's validated query type.
//
// TransformQuery validates and must not perform I/O. ExtractData may call
// the vendor and the cache. TransformData is a pure mapping.
type Fetcher[Q any] interface {
	TransformQuery(params Params) (Q, error)
	ExtractData(ctx context.Context, query Q, creds Credentials) ([]Row, error)
	TransformData(query Q, rows []Row) ([]Record, error)
}

// Endpoint is a Fetcher with its query type erased, as served by the
// registry.
type Endpoint interface {
	Name() string
	Description() string
	Fetch(ctx context.Context, params Params, creds Credentials) ([]Record, error)
}

// Adapt wraps a Fetcher as a named Endpoint.
func Adapt[Q any](name, description string, f Fetcher[Q]) Endpoint {
	return &endpoint[Q]{name: name, description: description, fetcher: f}
}

type endpoint[Q any] struct {
	name        string
	description string
	fetcher     Fetcher[Q]
}

func (e *endpoint[Q]) Name() string        { return e.name }
func (e *endpoint[Q]) Description() string { return e.description }

// Fetch runs the three stages in order, stopping at the first error.
func (e *endpoint[Q]) Fetch(ctx context.Context, params Params, creds Credentials) ([]Record, error) {
	q, err := e.fetcher.TransformQuery(params)
	if err != nil {
		return nil, err
	}
	rows, err := e.fetcher.ExtractData(ctx, q, creds)
	if err != nil {
		return nil, err
	}
	return e.fetcher.TransformData(q, rows)
}
