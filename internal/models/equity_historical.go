package models

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/markqiu/openbb-tushare/internal/datefmt"
	"github.com/markqiu/openbb-tushare/internal/domain"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/symbol"
)

// historyFreshness is how long a fetched range is served from the archive
// before the vendor is asked again.
const historyFreshness = time.Hour

// requestLogTable records which ranges were fetched and when.
var requestLogTable = store.Table{
	Name: "historical_requests",
	Columns: []store.Column{
		{Name: "request_key", Type: store.TypeText},
		{Name: "symbol", Type: store.TypeText},
		{Name: "period", Type: store.TypeText},
		{Name: "start_date", Type: store.TypeText},
		{Name: "end_date", Type: store.TypeText},
		{Name: "fetched_at", Type: store.TypeInteger}, // unix seconds
		{Name: "row_count", Type: store.TypeInteger},
	},
	PrimaryKey: "request_key",
}

var barFields = []string{
	"ts_code", "trade_date", "open", "high", "low", "close",
	"pre_close", "change", "pct_chg", "vol", "amount",
}

var historicalMapping = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.F("trade_date", "date", provider.KindDate),
	provider.Same("open", provider.KindFloat),
	provider.Same("high", provider.KindFloat),
	provider.Same("low", provider.KindFloat),
	provider.Same("close", provider.KindFloat),
	provider.F("vol", "volume", provider.KindFloat),
	provider.Same("amount", provider.KindFloat),
	provider.F("pre_close", "prev_close", provider.KindFloat),
	provider.Same("change", provider.KindFloat),
	provider.F("pct_chg", "change_percent", provider.KindPercent),
}

// HistoricalQuery is a validated historical price request.
type HistoricalQuery struct {
	Symbols  []symbol.Symbol
	Start    time.Time
	End      time.Time
	Period   domain.Period
	UseCache bool
	Extra    map[string]any
}

// EquityHistorical serves price bars for one or more symbols. Bars are kept
// in the bar archive; a fetched range is reused for one hour.
type EquityHistorical struct {
	m *Models
}

func (f *EquityHistorical) TransformQuery(p provider.Params) (HistoricalQuery, error) {
	syms, err := parseSymbols(p, false)
	if err != nil {
		return HistoricalQuery{}, err
	}
	today := datefmt.Truncate(f.m.deps.now().In(marketLocation))
	start, err := datefmt.Resolve(p.Value("start_date"), "start_date", today.AddDate(-1, 0, 0))
	if err != nil {
		return HistoricalQuery{}, err
	}
	end, err := datefmt.Resolve(p.Value("end_date"), "end_date", today)
	if err != nil {
		return HistoricalQuery{}, err
	}
	start, end = utcDay(start), utcDay(end)
	if start.After(end) {
		return HistoricalQuery{}, &provider.ParamError{Field: "start_date", Reason: "must not be after end_date"}
	}

	period := domain.PeriodDaily
	if s, ok := p.String("period"); ok && s != "" {
		period = domain.Period(s)
	}
	if !period.Valid() {
		return HistoricalQuery{}, &provider.ParamError{Field: "period", Reason: fmt.Sprintf("unsupported period %q", period)}
	}
	for _, s := range syms {
		if s.Market == domain.MarketHK && period != domain.PeriodDaily {
			return HistoricalQuery{}, &provider.ParamError{Field: "period", Reason: "only daily bars are available for Hong Kong symbols"}
		}
	}

	useCache, err := p.Bool("use_cache", true)
	if err != nil {
		return HistoricalQuery{}, err
	}
	return HistoricalQuery{
		Symbols:  syms,
		Start:    start,
		End:      end,
		Period:   period,
		UseCache: useCache,
		Extra:    p.Extra("symbol", "start_date", "end_date", "period", "use_cache"),
	}, nil
}

func (f *EquityHistorical) ExtractData(ctx context.Context, q HistoricalQuery, creds provider.Credentials) ([]provider.Row, error) {
	token := f.m.deps.token(creds)
	var rows []provider.Row
	for _, s := range q.Symbols {
		bars, err := f.bars(ctx, token, s, q)
		if err != nil {
			return nil, err
		}
		for _, b := range bars {
			rows = append(rows, barRow(b))
		}
	}
	if len(rows) == 0 {
		return nil, provider.ErrEmptyData
	}
	return rows, nil
}

func (f *EquityHistorical) TransformData(_ HistoricalQuery, rows []provider.Row) ([]provider.Record, error) {
	return historicalMapping.Apply(rows), nil
}

// bars returns the bars of one symbol, from the archive when the same range
// was fetched recently, otherwise from the vendor.
func (f *EquityHistorical) bars(ctx context.Context, token string, s symbol.Symbol, q HistoricalQuery) ([]domain.Bar, error) {
	deps := &f.m.deps
	code := s.String()
	key := requestKey(code, q)

	if q.UseCache {
		fresh, err := f.recentlyFetched(ctx, key)
		if err != nil {
			return nil, err
		}
		if fresh {
			bars, err := deps.Bars.ReadBars(ctx, code, q.Period, q.Start, q.End)
			if err != nil {
				return nil, err
			}
			if len(bars) > 0 {
				deps.Metrics.CacheHit(requestLogTable.Name)
				return bars, nil
			}
		}
		deps.Metrics.CacheMiss(requestLogTable.Name)
	}

	result, err := deps.Vendor.Query(ctx, token, barAPI(s, q.Period), map[string]any{
		"ts_code":    code,
		"start_date": datefmt.Compact(q.Start),
		"end_date":   datefmt.Compact(q.End),
	}, barFields)
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars for %s: %w", q.Period, code, err)
	}

	bars := make([]domain.Bar, 0, result.Len())
	for _, r := range result.Rows() {
		if b, ok := barFromRow(r, code); ok {
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		// The vendor has nothing for the range; the archive may still hold
		// bars from an earlier, wider fetch.
		return deps.Bars.ReadBars(ctx, code, q.Period, q.Start, q.End)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if err := deps.Bars.WriteBars(ctx, q.Period, bars); err != nil {
		return nil, err
	}
	err = deps.Cache.Write(ctx, requestLogTable, []store.Row{{
		"request_key": key,
		"symbol":      code,
		"period":      string(q.Period),
		"start_date":  q.Start.Format(datefmt.Layout),
		"end_date":    q.End.Format(datefmt.Layout),
		"fetched_at":  deps.now().Unix(),
		"row_count":   int64(len(bars)),
	}})
	if err != nil {
		return nil, err
	}
	deps.Log.Debug("fetched bars", "symbol", code, "period", q.Period, "bars", len(bars))
	return bars, nil
}

func (f *EquityHistorical) recentlyFetched(ctx context.Context, key string) (bool, error) {
	row, found, err := f.m.deps.Cache.ReadKey(ctx, requestLogTable.Name, key)
	if err != nil || !found {
		return false, err
	}
	at, ok := row["fetched_at"].(int64)
	if !ok {
		return false, nil
	}
	return f.m.deps.now().Sub(time.Unix(at, 0)) < historyFreshness, nil
}

// utcDay re-anchors a calendar date at UTC midnight, the archive's
// convention.
// marketLocation is the exchange time zone that "today" is taken in.
var marketLocation = loadMarketLocation()

func loadMarketLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		slog.Warn("loading time zone, using UTC", "error", err)
		return time.UTC
	}
	return loc
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func requestKey(code string, q HistoricalQuery) string {
	return fmt.Sprintf("%s|%s|%s|%s", code, q.Period, datefmt.Compact(q.Start), datefmt.Compact(q.End))
}

// barAPI picks the Tushare API serving period bars for s.
func barAPI(s symbol.Symbol, period domain.Period) string {
	if s.Market == domain.MarketHK {
		return "hk_daily"
	}
	return string(period)
}

func barFromRow(r map[string]any, code string) (domain.Bar, bool) {
	date, err := datefmt.ParseVendor(str(r["trade_date"]))
	if err != nil {
		return domain.Bar{}, false
	}
	if c := str(r["ts_code"]); c != "" {
		code = c
	}
	return domain.Bar{
		Symbol:   code,
		Date:     date,
		Open:     num(r["open"]),
		High:     num(r["high"]),
		Low:      num(r["low"]),
		Close:    num(r["close"]),
		PreClose: num(r["pre_close"]),
		Change:   num(r["change"]),
		PctChg:   num(r["pct_chg"]),
		Volume:   num(r["vol"]),
		Amount:   num(r["amount"]),
	}, true
}

// barRow renders a bar with vendor column names.
func barRow(b domain.Bar) provider.Row {
	return provider.Row{
		"ts_code":    b.Symbol,
		"trade_date": datefmt.Compact(b.Date),
		"open":       b.Open,
		"high":       b.High,
		"low":        b.Low,
		"close":      b.Close,
		"pre_close":  b.PreClose,
		"change":     b.Change,
		"pct_chg":    b.PctChg,
		"vol":        b.Volume,
		"amount":     b.Amount,
	}
}
