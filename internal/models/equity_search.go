package models

import (
	"context"

	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

var equityTable = store.Table{
	Name: "equity_symbols",
	Columns: []store.Column{
		{Name: "ts_code", Type: store.TypeText},
		{Name: "symbol", Type: store.TypeText},
		{Name: "name", Type: store.TypeText},
		{Name: "area", Type: store.TypeText},
		{Name: "industry", Type: store.TypeText},
		{Name: "fullname", Type: store.TypeText},
		{Name: "enname", Type: store.TypeText},
		{Name: "cnspell", Type: store.TypeText},
		{Name: "market", Type: store.TypeText},
		{Name: "exchange", Type: store.TypeText},
		{Name: "curr_type", Type: store.TypeText},
		{Name: "list_status", Type: store.TypeText},
		{Name: "list_date", Type: store.TypeText},
		{Name: "delist_date", Type: store.TypeText},
		{Name: "is_hs", Type: store.TypeText},
	},
	PrimaryKey: "ts_code",
}

var equityMapping = provider.Mapping{
	provider.Same("symbol", provider.KindString),
	provider.Same("name", provider.KindString),
	provider.Same("ts_code", provider.KindString),
	provider.Same("exchange", provider.KindString),
	provider.Same("market", provider.KindString),
	provider.Same("industry", provider.KindString),
	provider.Same("area", provider.KindString),
	provider.Same("fullname", provider.KindString),
	provider.Same("enname", provider.KindString),
	provider.Same("cnspell", provider.KindString),
	provider.F("curr_type", "currency", provider.KindString),
	provider.Same("list_status", provider.KindString),
	provider.Same("list_date", provider.KindDate),
	provider.Same("delist_date", provider.KindDate),
	provider.Same("is_hs", provider.KindString),
}

// EquitySearchQuery filters the cached equity list. With IsSymbol only
// codes are matched, not names.
type EquitySearchQuery struct {
	Query    string
	IsSymbol bool
	UseCache bool
	Limit    int
	Extra    map[string]any
}

// EquitySearch lists listed A-shares from stock_basic.
type EquitySearch struct {
	m *Models
}

func (f *EquitySearch) TransformQuery(p provider.Params) (EquitySearchQuery, error) {
	s, err := parseSearch(p)
	if err != nil {
		return EquitySearchQuery{}, err
	}
	return EquitySearchQuery{
		Query:    s.text,
		IsSymbol: s.isSymbol,
		UseCache: s.useCache,
		Limit:    s.limit,
		Extra:    p.Extra("query", "is_symbol", "use_cache", "limit"),
	}, nil
}

func (f *EquitySearch) ExtractData(ctx context.Context, q EquitySearchQuery, creds provider.Credentials) ([]provider.Row, error) {
	rows, err := f.m.equities.Load(ctx, f.m.deps.token(creds), q.UseCache)
	if err != nil {
		f.m.deps.Log.Warn("equity search failed, returning no rows", "error", err)
		return []provider.Row{}, nil
	}
	cols := []string{"symbol", "ts_code", "name", "cnspell"}
	if q.IsSymbol {
		cols = cols[:2]
	}
	return filterRows(rows, q.Query, q.Limit, cols...), nil
}

func (f *EquitySearch) TransformData(_ EquitySearchQuery, rows []provider.Row) ([]provider.Record, error) {
	return equityMapping.Apply(rows), nil
}

func prepareEquities(t *tushare.Table) []map[string]any {
	out := make([]map[string]any, 0, t.Len())
	for _, r := range t.Rows() {
		code := str(r["ts_code"])
		if code == "" {
			continue
		}
		deriveListing(r, code)
		fillMissing(r, equityTable)
		out = append(out, r)
	}
	return out
}
