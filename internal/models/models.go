// Package models implements the Tushare data models served to the host:
// reference lists backed by the table cache, historical bars backed by the
// bar archive, and pass-through quote and fundamentals endpoints.
package models

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/markqiu/openbb-tushare/internal/metrics"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/symbol"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

// Vendor is the Tushare API boundary. *tushare.Client implements it.
type Vendor interface {
	Query(ctx context.Context, token, apiName string, params map[string]any, fields []string) (*tushare.Table, error)
}

// Deps are the collaborators shared by every model.
type Deps struct {
	Vendor Vendor
	Cache  store.Cache
	Bars   store.BarStore

	// DefaultToken is used when a request carries no credentials.
	DefaultToken string

	Log     *slog.Logger
	Metrics *metrics.Metrics
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) token(creds provider.Credentials) string {
	if k := creds.APIKey(); k != "" {
		return k
	}
	return d.DefaultToken
}

// Models owns the cache-backed datasets and builds the endpoint registry.
type Models struct {
	deps Deps

	etfs     *Dataset
	equities *Dataset
	indices  *Dataset
}

// New wires the models to deps.
func New(deps Deps) *Models {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	deps.Log = deps.Log.With("component", "models")

	m := &Models{deps: deps}
	m.etfs = newDataset(&m.deps, etfTable, "fund_basic", map[string]any{"market": "E"}, nil, prepareETFs)
	m.equities = newDataset(&m.deps, equityTable, "stock_basic", map[string]any{"list_status": "L"},
		equityTable.ColumnNames(), prepareEquities)
	m.indices = newDataset(&m.deps, indexTable, "index_basic", nil, nil, prepareIndices)
	return m
}

// Datasets returns the cache-backed reference datasets, for scheduled
// refreshes.
func (m *Models) Datasets() []*Dataset {
	return []*Dataset{m.etfs, m.equities, m.indices}
}

// Equities returns the listed A-share dataset.
func (m *Models) Equities() *Dataset { return m.equities }

// Registry returns every model keyed by its host name.
func (m *Models) Registry() *provider.Registry {
	r := provider.NewRegistry()
	r.MustRegister(
		provider.Adapt[ETFSearchQuery]("ETFSearch", "Search Chinese exchange-traded funds.", &ETFSearch{m: m}),
		provider.Adapt[EquitySearchQuery]("EquitySearch", "Search listed A-share equities.", &EquitySearch{m: m}),
		provider.Adapt[AvailableIndicesQuery]("AvailableIndices", "List the indices Tushare covers.", &AvailableIndices{m: m}),
		provider.Adapt[HistoricalQuery]("EquityHistorical", "Daily, weekly or monthly price bars.", &EquityHistorical{m: m}),
		provider.Adapt[QuoteQuery]("EquityQuote", "Latest quote snapshot.", &EquityQuote{m: m}),
		provider.Adapt[ProfileQuery]("EquityInfo", "Company profile.", &EquityProfile{m: m}),
		provider.Adapt[StatementQuery]("BalanceSheet", "Balance sheet statements.", newStatement(m, "balancesheet", balanceMapping)),
		provider.Adapt[StatementQuery]("CashFlowStatement", "Cash flow statements.", newStatement(m, "cashflow", cashFlowMapping)),
		provider.Adapt[StatementQuery]("IncomeStatement", "Income statements.", newStatement(m, "income", incomeMapping)),
		provider.Adapt[DividendQuery]("HistoricalDividends", "Implemented dividend distributions.", &HistoricalDividends{m: m}),
	)
	return r
}

// parseSymbols reads and validates the symbol param. single rejects lists.
func parseSymbols(p provider.Params, single bool) ([]symbol.Symbol, error) {
	raw, ok := p.String("symbol")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, &provider.ParamError{Field: "symbol", Reason: "required"}
	}
	syms, err := symbol.ParseList(raw, "symbol")
	if err != nil {
		return nil, err
	}
	if single && len(syms) > 1 {
		return nil, &provider.ParamError{Field: "symbol", Reason: "a single symbol is expected"}
	}
	return syms, nil
}

// splitCode splits a ts_code into its base code and market suffix.
func splitCode(code string) (base, market string) {
	if i := strings.LastIndexByte(code, '.'); i > 0 {
		return code[:i], code[i+1:]
	}
	return code, ""
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}
