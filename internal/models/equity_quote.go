package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/markqiu/openbb-tushare/internal/domain"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/symbol"
)

var quoteFields = []string{
	"ts_code", "name", "pre_close", "open", "high", "low", "close",
	"vol", "amount", "bid_price1", "ask_price1", "trade_time",
}

var hkQuoteFields = []string{
	"ts_code", "name", "pre_close", "open", "high", "low", "close", "vol", "amount",
}

// quoteMapping serves mainland quotes from rt_k, where close is the latest
// trade price.
var quoteMapping = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.Same("name", provider.KindString),
	provider.F("bid_price1", "bid", provider.KindFloat),
	provider.F("ask_price1", "ask", provider.KindFloat),
	provider.F("close", "last_price", provider.KindFloat),
	provider.Same("open", provider.KindFloat),
	provider.Same("high", provider.KindFloat),
	provider.Same("low", provider.KindFloat),
	provider.F("vol", "volume", provider.KindFloat),
	provider.F("pre_close", "prev_close", provider.KindFloat),
}

// hkQuoteMapping serves rt_hk_k quotes, which carry no order book.
var hkQuoteMapping = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.Same("open", provider.KindFloat),
	provider.Same("high", provider.KindFloat),
	provider.Same("low", provider.KindFloat),
	provider.Same("close", provider.KindFloat),
	provider.F("vol", "volume", provider.KindFloat),
	provider.F("pre_close", "prev_close", provider.KindFloat),
}

type QuoteQuery struct {
	Symbols []symbol.Symbol
	Extra   map[string]any
}

// EquityQuote returns the latest snapshot of each symbol. Hong Kong
// symbols are served by rt_hk_k, all others by rt_k.
type EquityQuote struct {
	m *Models
}

func (f *EquityQuote) TransformQuery(p provider.Params) (QuoteQuery, error) {
	syms, err := parseSymbols(p, false)
	if err != nil {
		return QuoteQuery{}, err
	}
	return QuoteQuery{Symbols: syms, Extra: p.Extra("symbol", "use_cache")}, nil
}

func (f *EquityQuote) ExtractData(ctx context.Context, q QuoteQuery, creds provider.Credentials) ([]provider.Row, error) {
	var mainland, hk []symbol.Symbol
	for _, s := range q.Symbols {
		if s.Market == domain.MarketHK {
			hk = append(hk, s)
		} else {
			mainland = append(mainland, s)
		}
	}

	token := f.m.deps.token(creds)
	var rows []provider.Row
	for _, group := range []struct {
		api    string
		syms   []symbol.Symbol
		fields []string
	}{
		{"rt_k", mainland, quoteFields},
		{"rt_hk_k", hk, hkQuoteFields},
	} {
		if len(group.syms) == 0 {
			continue
		}
		result, err := f.m.deps.Vendor.Query(ctx, token, group.api,
			map[string]any{"ts_code": symbol.Join(group.syms)}, group.fields)
		if err != nil {
			return nil, fmt.Errorf("fetching quotes: %w", err)
		}
		rows = append(rows, result.Rows()...)
	}
	if len(rows) == 0 {
		return nil, provider.ErrEmptyData
	}
	return rows, nil
}

func (f *EquityQuote) TransformData(_ QuoteQuery, rows []provider.Row) ([]provider.Record, error) {
	out := make([]provider.Record, 0, len(rows))
	for _, r := range rows {
		if strings.HasSuffix(str(r["ts_code"]), "."+string(domain.MarketHK)) {
			out = append(out, hkQuoteMapping.Record(r))
		} else {
			out = append(out, quoteMapping.Record(r))
		}
	}
	return out, nil
}
