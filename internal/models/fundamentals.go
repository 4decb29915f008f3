package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/markqiu/openbb-tushare/internal/datefmt"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/symbol"
)

// ---------------------------------------------------------------------------
// Company profile
// ---------------------------------------------------------------------------

var profileMapping = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.F("com_name", "name", provider.KindString),
	provider.F("com_id", "company_id", provider.KindString),
	provider.F("exchange", "stock_exchange", provider.KindString),
	provider.Same("chairman", provider.KindString),
	provider.F("manager", "ceo", provider.KindString),
	provider.Same("secretary", provider.KindString),
	provider.F("reg_capital", "registered_capital", provider.KindFloat),
	provider.F("setup_date", "founded", provider.KindDate),
	provider.Same("province", provider.KindString),
	provider.Same("city", provider.KindString),
	provider.F("introduction", "long_description", provider.KindString),
	provider.F("website", "company_url", provider.KindString),
	provider.Same("email", provider.KindString),
	provider.F("office", "business_address", provider.KindString),
	provider.Same("employees", provider.KindInt),
	provider.F("main_business", "short_description", provider.KindString),
	provider.F("business_scope", "business_scope", provider.KindString),
}

type ProfileQuery struct {
	Symbols []symbol.Symbol
	Extra   map[string]any
}

// EquityProfile returns listed-company profiles from stock_company.
type EquityProfile struct {
	m *Models
}

func (f *EquityProfile) TransformQuery(p provider.Params) (ProfileQuery, error) {
	syms, err := parseSymbols(p, false)
	if err != nil {
		return ProfileQuery{}, err
	}
	return ProfileQuery{Symbols: syms, Extra: p.Extra("symbol")}, nil
}

func (f *EquityProfile) ExtractData(ctx context.Context, q ProfileQuery, creds provider.Credentials) ([]provider.Row, error) {
	result, err := f.m.deps.Vendor.Query(ctx, f.m.deps.token(creds), "stock_company",
		map[string]any{"ts_code": symbol.Join(q.Symbols)}, profileMapping.VendorFields())
	if err != nil {
		return nil, fmt.Errorf("fetching company profile: %w", err)
	}
	if result.Len() == 0 {
		return nil, provider.ErrEmptyData
	}
	return result.Rows(), nil
}

func (f *EquityProfile) TransformData(_ ProfileQuery, rows []provider.Row) ([]provider.Record, error) {
	return profileMapping.Apply(rows), nil
}

// ---------------------------------------------------------------------------
// Financial statements
// ---------------------------------------------------------------------------

var statementHead = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.F("end_date", "period_ending", provider.KindDate),
	provider.F("ann_date", "filing_date", provider.KindDate),
}

var balanceMapping = append(statementHead[:len(statementHead):len(statementHead)],
	provider.F("total_assets", "total_assets", provider.KindFloat),
	provider.F("total_cur_assets", "total_current_assets", provider.KindFloat),
	provider.F("money_cap", "cash_and_cash_equivalents", provider.KindFloat),
	provider.F("accounts_receiv", "accounts_receivable", provider.KindFloat),
	provider.F("inventories", "inventory", provider.KindFloat),
	provider.F("fix_assets", "property_plant_equipment", provider.KindFloat),
	provider.Same("goodwill", provider.KindFloat),
	provider.F("total_liab", "total_liabilities", provider.KindFloat),
	provider.F("total_cur_liab", "total_current_liabilities", provider.KindFloat),
	provider.F("st_borr", "short_term_debt", provider.KindFloat),
	provider.F("lt_borr", "long_term_debt", provider.KindFloat),
	provider.F("total_hldr_eqy_exc_min_int", "total_equity", provider.KindFloat),
	provider.F("undistr_porfit", "retained_earnings", provider.KindFloat),
)

var cashFlowMapping = append(statementHead[:len(statementHead):len(statementHead)],
	provider.F("n_cashflow_act", "net_cash_from_operating_activities", provider.KindFloat),
	provider.F("n_cashflow_inv_act", "net_cash_from_investing_activities", provider.KindFloat),
	provider.F("n_cash_flows_fnc_act", "net_cash_from_financing_activities", provider.KindFloat),
	provider.F("c_pay_acq_const_fiolta", "capital_expenditure", provider.KindFloat),
	provider.F("free_cashflow", "free_cash_flow", provider.KindFloat),
	provider.F("n_incr_cash_cash_equ", "net_change_in_cash", provider.KindFloat),
)

var incomeMapping = append(statementHead[:len(statementHead):len(statementHead)],
	provider.F("total_revenue", "total_revenue", provider.KindFloat),
	provider.F("revenue", "revenue", provider.KindFloat),
	provider.F("oper_cost", "cost_of_revenue", provider.KindFloat),
	provider.F("operate_profit", "operating_income", provider.KindFloat),
	provider.F("total_profit", "income_before_tax", provider.KindFloat),
	provider.F("income_tax", "income_tax_expense", provider.KindFloat),
	provider.F("n_income", "net_income", provider.KindFloat),
	provider.F("n_income_attr_p", "net_income_attributable_to_parent", provider.KindFloat),
	provider.F("basic_eps", "basic_earnings_per_share", provider.KindFloat),
	provider.F("diluted_eps", "diluted_earnings_per_share", provider.KindFloat),
	provider.Same("ebit", provider.KindFloat),
	provider.Same("ebitda", provider.KindFloat),
)

// StatementQuery selects reports of one company. Period is "annual" (only
// December reports) or "quarter".
type StatementQuery struct {
	Symbol symbol.Symbol
	Period string
	Limit  int
	Extra  map[string]any
}

// Statement serves one Tushare financial statement API.
type Statement struct {
	m       *Models
	api     string
	mapping provider.Mapping
}

func newStatement(m *Models, api string, mapping provider.Mapping) *Statement {
	return &Statement{m: m, api: api, mapping: mapping}
}

func (f *Statement) TransformQuery(p provider.Params) (StatementQuery, error) {
	syms, err := parseSymbols(p, true)
	if err != nil {
		return StatementQuery{}, err
	}
	period := "annual"
	if s, ok := p.String("period"); ok && s != "" {
		period = s
	}
	if period != "annual" && period != "quarter" {
		return StatementQuery{}, &provider.ParamError{Field: "period", Reason: fmt.Sprintf("expected annual or quarter, got %q", period)}
	}
	limit, err := p.Int("limit", 5)
	if err != nil {
		return StatementQuery{}, err
	}
	if limit < 0 {
		return StatementQuery{}, &provider.ParamError{Field: "limit", Reason: "must not be negative"}
	}
	return StatementQuery{
		Symbol: syms[0],
		Period: period,
		Limit:  limit,
		Extra:  p.Extra("symbol", "period", "limit"),
	}, nil
}

// ExtractData returns the newest reports first, one per reporting period.
// Tushare repeats a period when a report is amended; the amended row wins.
func (f *Statement) ExtractData(ctx context.Context, q StatementQuery, creds provider.Credentials) ([]provider.Row, error) {
	fields := append(f.mapping.VendorFields(), "update_flag")
	result, err := f.m.deps.Vendor.Query(ctx, f.m.deps.token(creds), f.api,
		map[string]any{"ts_code": q.Symbol.String()}, fields)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.api, err)
	}

	byPeriod := make(map[string]provider.Row)
	for _, r := range result.Rows() {
		end := str(r["end_date"])
		if end == "" || (q.Period == "annual" && !strings.HasSuffix(end, "1231")) {
			continue
		}
		if prev, ok := byPeriod[end]; ok && str(prev["update_flag"]) >= str(r["update_flag"]) {
			continue
		}
		byPeriod[end] = r
	}
	rows := make([]provider.Row, 0, len(byPeriod))
	for _, r := range byPeriod {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return str(rows[i]["end_date"]) > str(rows[j]["end_date"]) })
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	if len(rows) == 0 {
		return nil, provider.ErrEmptyData
	}
	return rows, nil
}

// TransformData maps the statement and adds the fiscal year and period
// derived from the report end date.
func (f *Statement) TransformData(q StatementQuery, rows []provider.Row) ([]provider.Record, error) {
	out := f.mapping.Apply(rows)
	for _, rec := range out {
		end, _ := rec["period_ending"].(string)
		if len(end) != len(datefmt.Layout) {
			continue
		}
		rec["fiscal_year"] = end[:4]
		rec["fiscal_period"] = fiscalPeriod(end[5:7], q.Period)
	}
	return out, nil
}

func fiscalPeriod(month, period string) string {
	switch month {
	case "03":
		return "Q1"
	case "06":
		return "Q2"
	case "09":
		return "Q3"
	case "12":
		if period == "annual" {
			return "FY"
		}
		return "Q4"
	}
	return ""
}

// ---------------------------------------------------------------------------
// Dividends
// ---------------------------------------------------------------------------

var dividendMapping = provider.Mapping{
	provider.F("ts_code", "symbol", provider.KindString),
	provider.F("ex_date", "ex_dividend_date", provider.KindDate),
	provider.F("cash_div_tax", "amount", provider.KindFloat),
	provider.F("cash_div", "amount_after_tax", provider.KindFloat),
	provider.F("stk_div", "stock_dividend", provider.KindFloat),
	provider.F("record_date", "record_date", provider.KindDate),
	provider.F("pay_date", "payment_date", provider.KindDate),
	provider.F("imp_ann_date", "declaration_date", provider.KindDate),
	provider.F("end_date", "period_ending", provider.KindDate),
}

type DividendQuery struct {
	Symbol symbol.Symbol
	// Start and End bound the ex-dividend date; zero means unbounded.
	Start time.Time
	End   time.Time
	Extra map[string]any
}

// HistoricalDividends returns implemented distributions from dividend.
// Proposals without an ex-dividend date are skipped.
type HistoricalDividends struct {
	m *Models
}

func (f *HistoricalDividends) TransformQuery(p provider.Params) (DividendQuery, error) {
	syms, err := parseSymbols(p, true)
	if err != nil {
		return DividendQuery{}, err
	}
	start, err := datefmt.Resolve(p.Value("start_date"), "start_date", time.Time{})
	if err != nil {
		return DividendQuery{}, err
	}
	end, err := datefmt.Resolve(p.Value("end_date"), "end_date", time.Time{})
	if err != nil {
		return DividendQuery{}, err
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return DividendQuery{}, &provider.ParamError{Field: "start_date", Reason: "must not be after end_date"}
	}
	return DividendQuery{
		Symbol: syms[0],
		Start:  start,
		End:    end,
		Extra:  p.Extra("symbol", "start_date", "end_date"),
	}, nil
}

func (f *HistoricalDividends) ExtractData(ctx context.Context, q DividendQuery, creds provider.Credentials) ([]provider.Row, error) {
	fields := append(dividendMapping.VendorFields(), "div_proc")
	result, err := f.m.deps.Vendor.Query(ctx, f.m.deps.token(creds), "dividend",
		map[string]any{"ts_code": q.Symbol.String()}, fields)
	if err != nil {
		return nil, fmt.Errorf("fetching dividends: %w", err)
	}

	var lo, hi string
	if !q.Start.IsZero() {
		lo = datefmt.Compact(q.Start)
	}
	if !q.End.IsZero() {
		hi = datefmt.Compact(q.End)
	}
	var rows []provider.Row
	for _, r := range result.Rows() {
		ex := str(r["ex_date"])
		if ex == "" || (lo != "" && ex < lo) || (hi != "" && ex > hi) {
			continue
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil, provider.ErrEmptyData
	}
	sort.Slice(rows, func(i, j int) bool { return str(rows[i]["ex_date"]) < str(rows[j]["ex_date"]) })
	return rows, nil
}

func (f *HistoricalDividends) TransformData(_ DividendQuery, rows []provider.Row) ([]provider.Record, error) {
	return dividendMapping.Apply(rows), nil
}
