package models

import (
	"context"
	"strings"

	"github.com/markqiu/openbb-tushare/internal/domain"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

var etfTable = store.Table{
	Name: "etf_symbols",
	Columns: []store.Column{
		{Name: "ts_code", Type: store.TypeText}, // e.g. 159919.SZ
		{Name: "symbol", Type: store.TypeText},  // e.g. 159919
		{Name: "name", Type: store.TypeText},
		{Name: "exchange", Type: store.TypeText}, // SSE, SZSE, BSE
		{Name: "management", Type: store.TypeText},
		{Name: "custodian", Type: store.TypeText},
		{Name: "fund_type", Type: store.TypeText},
		{Name: "found_date", Type: store.TypeText},
		{Name: "due_date", Type: store.TypeText},
		{Name: "list_date", Type: store.TypeText},
		{Name: "issue_amount", Type: store.TypeReal},
		{Name: "m_fee", Type: store.TypeReal},
		{Name: "c_fee", Type: store.TypeReal},
		{Name: "duration_year", Type: store.TypeReal},
		{Name: "p_value", Type: store.TypeReal},
		{Name: "min_amount", Type: store.TypeReal},
		{Name: "exp_return", Type: store.TypeReal},
		{Name: "benchmark", Type: store.TypeText},
		{Name: "status", Type: store.TypeText},
		{Name: "invest_type", Type: store.TypeText},
		{Name: "type", Type: store.TypeText},
		{Name: "trustee", Type: store.TypeText},
		{Name: "purc_startdate", Type: store.TypeText},
		{Name: "redm_startdate", Type: store.TypeText},
		{Name: "market", Type: store.TypeText},
	},
	PrimaryKey: "ts_code",
}

var etfMapping = provider.Mapping{
	provider.Same("symbol", provider.KindString),
	provider.Same("name", provider.KindString),
	provider.Same("ts_code", provider.KindString),
	provider.Same("exchange", provider.KindString),
	provider.Same("management", provider.KindString),
	provider.Same("custodian", provider.KindString),
	provider.Same("fund_type", provider.KindString),
	provider.Same("found_date", provider.KindDate),
	provider.Same("due_date", provider.KindDate),
	provider.Same("list_date", provider.KindDate),
	provider.Same("issue_amount", provider.KindFloat),
	provider.Same("m_fee", provider.KindFloat),
	provider.Same("c_fee", provider.KindFloat),
	provider.Same("p_value", provider.KindFloat),
	provider.Same("min_amount", provider.KindFloat),
	provider.Same("benchmark", provider.KindString),
	provider.Same("status", provider.KindString),
	provider.Same("invest_type", provider.KindString),
	provider.Same("market", provider.KindString),
}

// ETFSearchQuery filters the cached ETF list.
type ETFSearchQuery struct {
	Query    string
	UseCache bool
	// Limit caps the number of rows; 0 means no cap.
	Limit int
	Extra map[string]any
}

// ETFSearch lists exchange-traded funds from fund_basic. Failures yield an
// empty list rather than an error.
type ETFSearch struct {
	m *Models
}

func (f *ETFSearch) TransformQuery(p provider.Params) (ETFSearchQuery, error) {
	q, err := parseSearch(p)
	if err != nil {
		return ETFSearchQuery{}, err
	}
	return ETFSearchQuery{
		Query:    q.text,
		UseCache: q.useCache,
		Limit:    q.limit,
		Extra:    p.Extra("query", "use_cache", "limit"),
	}, nil
}

func (f *ETFSearch) ExtractData(ctx context.Context, q ETFSearchQuery, creds provider.Credentials) ([]provider.Row, error) {
	rows, err := f.m.etfs.Load(ctx, f.m.deps.token(creds), q.UseCache)
	if err != nil {
		f.m.deps.Log.Warn("etf search failed, returning no rows", "error", err)
		return []provider.Row{}, nil
	}
	return filterRows(rows, q.Query, q.Limit, "symbol", "name", "ts_code"), nil
}

func (f *ETFSearch) TransformData(_ ETFSearchQuery, rows []provider.Row) ([]provider.Record, error) {
	return etfMapping.Apply(rows), nil
}

// prepareETFs keeps ETF-type funds and derives the host fields from
// ts_code.
func prepareETFs(t *tushare.Table) []map[string]any {
	filterType := t.HasField("fund_type")
	out := make([]map[string]any, 0, t.Len())
	for _, r := range t.Rows() {
		if filterType && str(r["fund_type"]) != "ETF" {
			continue
		}
		code := str(r["ts_code"])
		if code == "" {
			continue
		}
		deriveListing(r, code)
		if str(r["name"]) == "" {
			switch {
			case str(r["fund_name"]) != "":
				r["name"] = r["fund_name"]
			default:
				r["name"] = r["symbol"]
			}
		}
		fillMissing(r, etfTable)
		out = append(out, r)
	}
	return out
}

// deriveListing fills symbol and exchange from a ts_code when the vendor
// did not supply them, and widens short exchange codes.
func deriveListing(r map[string]any, code string) {
	base, market := splitCode(code)
	if str(r["symbol"]) == "" {
		r["symbol"] = base
	}
	ex := str(r["exchange"])
	if ex == "" {
		ex = market
	}
	r["exchange"] = domain.Market(ex).Exchange()
}

type searchParams struct {
	text     string
	useCache bool
	limit    int
	isSymbol bool
}

func parseSearch(p provider.Params) (searchParams, error) {
	var s searchParams
	s.text, _ = p.String("query")
	var err error
	if s.useCache, err = p.Bool("use_cache", true); err != nil {
		return s, err
	}
	if s.limit, err = p.Int("limit", 10000); err != nil {
		return s, err
	}
	if s.limit < 0 {
		return s, &provider.ParamError{Field: "limit", Reason: "must not be negative"}
	}
	if s.isSymbol, err = p.Bool("is_symbol", false); err != nil {
		return s, err
	}
	return s, nil
}

// filterRows keeps rows where any of cols contains text, case-insensitive,
// up to limit rows.
func filterRows(rows []store.Row, text string, limit int, cols ...string) []provider.Row {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]provider.Row, 0, len(rows))
	for _, r := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		if needle != "" && !matchesAny(r, needle, cols) {
			continue
		}
		out = append(out, provider.Row(r))
	}
	return out
}

func matchesAny(r store.Row, needle string, cols []string) bool {
	for _, c := range cols {
		if strings.Contains(strings.ToLower(str(r[c])), needle) {
			return true
		}
	}
	return false
}
