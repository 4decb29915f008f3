package models

import (
	"context"

	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

var indexTable = store.Table{
	Name: "available_indices",
	Columns: []store.Column{
		{Name: "ts_code", Type: store.TypeText},
		{Name: "name", Type: store.TypeText},
		{Name: "fullname", Type: store.TypeText},
		{Name: "market", Type: store.TypeText},
		{Name: "publisher", Type: store.TypeText},
		{Name: "index_type", Type: store.TypeText},
		{Name: "category", Type: store.TypeText},
		{Name: "base_date", Type: store.TypeText},
		{Name: "base_point", Type: store.TypeReal},
		{Name: "list_date", Type: store.TypeText},
		{Name: "weight_rule", Type: store.TypeText},
		{Name: "desc", Type: store.TypeText},
		{Name: "exp_date", Type: store.TypeText},
		{Name: "currency", Type: store.TypeText},
	},
	PrimaryKey: "ts_code",
}

// indexMapping renames ts_code to symbol. Rows that already carry symbol
// are accepted as well.
var indexMapping = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.Same("name", provider.KindString),
	provider.Same("fullname", provider.KindString),
	provider.Same("market", provider.KindString),
	provider.Same("publisher", provider.KindString),
	provider.Same("index_type", provider.KindString),
	provider.Same("category", provider.KindString),
	provider.Same("base_date", provider.KindDate),
	provider.Same("base_point", provider.KindFloat),
	provider.Same("list_date", provider.KindDate),
	provider.Same("weight_rule", provider.KindString),
	provider.F("desc", "description", provider.KindString),
	provider.Same("exp_date", provider.KindDate),
	provider.Same("currency", provider.KindString),
}

type AvailableIndicesQuery struct {
	UseCache bool
	Extra    map[string]any
}

// AvailableIndices lists indices from index_basic.
type AvailableIndices struct {
	m *Models
}

func (f *AvailableIndices) TransformQuery(p provider.Params) (AvailableIndicesQuery, error) {
	useCache, err := p.Bool("use_cache", true)
	if err != nil {
		return AvailableIndicesQuery{}, err
	}
	return AvailableIndicesQuery{UseCache: useCache, Extra: p.Extra("use_cache")}, nil
}

func (f *AvailableIndices) ExtractData(ctx context.Context, q AvailableIndicesQuery, creds provider.Credentials) ([]provider.Row, error) {
	rows, err := f.m.indices.Load(ctx, f.m.deps.token(creds), q.UseCache)
	if err != nil {
		f.m.deps.Log.Warn("index list failed, returning no rows", "error", err)
		return []provider.Row{}, nil
	}
	return filterRows(rows, "", 0), nil
}

func (f *AvailableIndices) TransformData(_ AvailableIndicesQuery, rows []provider.Row) ([]provider.Record, error) {
	return indexMapping.Apply(rows), nil
}

// prepareIndices drops rows without a code. Every index Tushare lists is
// quoted in CNY.
func prepareIndices(t *tushare.Table) []map[string]any {
	out := make([]map[string]any, 0, t.Len())
	for _, r := range t.Rows() {
		if str(r["ts_code"]) == "" {
			continue
		}
		if str(r["currency"]) == "" {
			r["currency"] = "CNY"
		}
		out = append(out, r)
	}
	return out
}
