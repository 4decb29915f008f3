package models

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/symbol"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

type vendorCall struct {
	token  string
	api    string
	params map[string]any
}

// fakeVendor answers each api with a canned table or error.
type fakeVendor struct {
	mu     sync.Mutex
	tables map[string]*tushare.Table
	errs   map[string]error
	calls  []vendorCall
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{tables: map[string]*tushare.Table{}, errs: map[string]error{}}
}

func (v *fakeVendor) Query(_ context.Context, token, api string, params map[string]any, _ []string) (*tushare.Table, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, vendorCall{token: token, api: api, params: params})
	if err := v.errs[api]; err != nil {
		return nil, err
	}
	if t, ok := v.tables[api]; ok {
		return t, nil
	}
	return &tushare.Table{}, nil
}

func (v *fakeVendor) callCount(api string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.calls {
		if c.api == api {
			n++
		}
	}
	return n
}

type testEnv struct {
	models *Models
	vendor *fakeVendor
	cache  *store.TableCache
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cache, err := store.NewTableCache(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	env := &testEnv{
		vendor: newFakeVendor(),
		cache:  cache,
		now:    time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}
	env.models = New(Deps{
		Vendor:       env.vendor,
		Cache:        cache,
		Bars:         store.NewBarArchive(filepath.Join(dir, "bars")),
		DefaultToken: "default-token",
		Now:          func() time.Time { return env.now },
	})
	return env
}

func (e *testEnv) fetch(t *testing.T, model string, params provider.Params) ([]provider.Record, error) {
	t.Helper()
	ep, ok := e.models.Registry().Get(model)
	require.True(t, ok, "model %s not registered", model)
	return ep.Fetch(context.Background(), params, nil)
}

func TestRegistryNames(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, []string{
		"AvailableIndices", "BalanceSheet", "CashFlowStatement", "ETFSearch", "EquityHistorical",
		"EquityInfo", "EquityQuote", "EquitySearch", "HistoricalDividends", "IncomeStatement",
	}, env.models.Registry().Names())
}

func TestUnsupportedSymbolRejectedByEveryModel(t *testing.T) {
	env := newTestEnv(t)
	for _, model := range []string{
		"EquityHistorical", "EquityQuote", "EquityInfo", "BalanceSheet",
		"CashFlowStatement", "IncomeStatement", "HistoricalDividends",
	} {
		t.Run(model, func(t *testing.T) {
			_, err := env.fetch(t, model, provider.Params{"symbol": "AAPL"})
			var marketErr *symbol.UnsupportedMarketError
			require.True(t, errors.As(err, &marketErr), "got %T: %v", err, err)
			assert.Contains(t, err.Error(), "Invalid 'symbol' market for Tushare")

			_, err = env.fetch(t, model, provider.Params{})
			var perr *provider.ParamError
			require.True(t, errors.As(err, &perr), "got %T: %v", err, err)
		})
	}
	assert.Empty(t, env.vendor.calls, "validation must fail before any vendor call")
}

func TestHistoricalTransformQuery(t *testing.T) {
	env := newTestEnv(t)
	f := &EquityHistorical{m: env.models}

	q, err := f.TransformQuery(provider.Params{"symbol": "600036.SS, 000001.SZ, 430047.BJ"})
	require.NoError(t, err)
	assert.Equal(t, "600036.SH,000001.SZ,430047.BJ", symbol.Join(q.Symbols))
	assert.Equal(t, time.Date(2023, 6, 3, 0, 0, 0, 0, time.UTC), q.Start)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), q.End)
	assert.Equal(t, "daily", string(q.Period))
	assert.True(t, q.UseCache)

	q, err = f.TransformQuery(provider.Params{
		"symbol": "600036", "start_date": "2024-01-01", "end_date": "2024-02-01",
		"period": "weekly", "use_cache": false, "adjustment": "qfq",
	})
	require.NoError(t, err)
	assert.Equal(t, "weekly", string(q.Period))
	assert.False(t, q.UseCache)
	assert.Equal(t, map[string]any{"adjustment": "qfq"}, q.Extra)

	tests := []struct {
		name   string
		params provider.Params
		want   string
	}{
		{"slash start", provider.Params{"symbol": "600036.SH", "start_date": "2024/01/01"},
			"Invalid 'start_date' format. Expected YYYY-MM-DD."},
		{"compact end", provider.Params{"symbol": "600036.SH", "end_date": "20240101"},
			"Invalid 'end_date' format. Expected YYYY-MM-DD."},
		{"impossible date", provider.Params{"symbol": "600036.SH", "start_date": "2024-13-40"},
			"Expected YYYY-MM-DD"},
		{"reversed range", provider.Params{"symbol": "600036.SH", "start_date": "2024-03-01", "end_date": "2024-01-01"},
			"must not be after end_date"},
		{"bad period", provider.Params{"symbol": "600036.SH", "period": "hourly"},
			"unsupported period"},
		{"hk weekly", provider.Params{"symbol": "00700.HK", "period": "weekly"},
			"only daily bars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.TransformQuery(tt.params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHistoricalDefaultsUseMarketDate(t *testing.T) {
	env := newTestEnv(t)
	// 20:00 UTC on June 2 is already June 3 in Shanghai.
	env.now = time.Date(2024, 6, 2, 20, 0, 0, 0, time.UTC)
	f := &EquityHistorical{m: env.models}

	q, err := f.TransformQuery(provider.Params{"symbol": "600036.SH"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), q.End)
	assert.Equal(t, time.Date(2023, 6, 3, 0, 0, 0, 0, time.UTC), q.Start)
}

func TestHistoricalEmptyDataFails(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.fetch(t, "EquityHistorical", provider.Params{"symbol": "600036.SH"})
	assert.ErrorIs(t, err, provider.ErrEmptyData)
}

func TestETFSearchEmptyReturnsEmptyList(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.fetch(t, "ETFSearch", provider.Params{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	env.vendor.errs["fund_basic"] = errors.New("quota exhausted")
	got, err = env.fetch(t, "ETFSearch", provider.Params{"use_cache": false})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func etfTableFixture() *tushare.Table {
	return &tushare.Table{
		Fields: []string{"ts_code", "name", "fund_type", "management", "m_fee", "list_date", "market"},
		Items: [][]any{
			{"159919.SZ", "沪深300ETF", "ETF", "嘉实基金", 0.5, "20120528", "E"},
			{"510300.SH", "300ETF", "ETF", "华泰柏瑞基金", 0.15, "20120528", "E"},
			{"160706.SZ", "嘉实300", "LOF", "嘉实基金", 1.0, "20060101", "E"},
			{"588000.SH", nil, "ETF", nil, nil, nil, "E"},
		},
	}
}

func TestETFSearchDerivesFieldsAndCaches(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["fund_basic"] = etfTableFixture()

	got, err := env.fetch(t, "ETFSearch", provider.Params{})
	require.NoError(t, err)
	require.Len(t, got, 3, "the LOF is filtered out")

	byCode := map[any]provider.Record{}
	for _, r := range got {
		byCode[r["ts_code"]] = r
	}
	etf := byCode["159919.SZ"]
	assert.Equal(t, "159919", etf["symbol"])
	assert.Equal(t, "SZSE", etf["exchange"])
	assert.Equal(t, "沪深300ETF", etf["name"])
	assert.Equal(t, "2012-05-28", etf["list_date"])
	assert.Equal(t, 0.5, etf["m_fee"])
	assert.Equal(t, "SSE", byCode["510300.SH"]["exchange"])

	// Missing name falls back to the symbol; missing text is "" and missing
	// numbers are 0.
	bare := byCode["588000.SH"]
	assert.Equal(t, "588000", bare["name"])
	assert.Equal(t, "", bare["management"])
	assert.Equal(t, 0.0, bare["m_fee"])

	require.Equal(t, 1, env.vendor.callCount("fund_basic"))
	assert.Equal(t, "default-token", env.vendor.calls[0].token)
	assert.Equal(t, map[string]any{"market": "E"}, env.vendor.calls[0].params)

	// Served from the cache now.
	got, err = env.fetch(t, "ETFSearch", provider.Params{"query": "300", "limit": 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, env.vendor.callCount("fund_basic"))

	rows, err := env.cache.Read(context.Background(), "etf_symbols")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// use_cache=false goes back to the vendor.
	_, err = env.fetch(t, "ETFSearch", provider.Params{"use_cache": "false"})
	require.NoError(t, err)
	assert.Equal(t, 2, env.vendor.callCount("fund_basic"))
}

func TestETFSearchTransformQuery(t *testing.T) {
	env := newTestEnv(t)
	f := &ETFSearch{m: env.models}

	for _, text := range []string{"", "ETF", "510300"} {
		q, err := f.TransformQuery(provider.Params{"query": text, "use_cache": true, "limit": 100})
		require.NoError(t, err)
		assert.Equal(t, text, q.Query)
		assert.True(t, q.UseCache)
		assert.Equal(t, 100, q.Limit)
	}

	q, err := f.TransformQuery(provider.Params{})
	require.NoError(t, err)
	assert.True(t, q.UseCache)
	assert.Equal(t, 10000, q.Limit)

	_, err = f.TransformQuery(provider.Params{"limit": -1})
	assert.Error(t, err)

	recs, err := f.TransformData(q, nil)
	require.NoError(t, err)
	assert.Equal(t, []provider.Record{}, recs)
}

func TestETFSearchLimit(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["fund_basic"] = etfTableFixture()
	f := &ETFSearch{m: env.models}

	for _, limit := range []int{1, 2, 10} {
		q, err := f.TransformQuery(provider.Params{"limit": limit})
		require.NoError(t, err)
		rows, err := f.ExtractData(context.Background(), q, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(rows), limit)
	}
}

func TestEquitySearch(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["stock_basic"] = &tushare.Table{
		Fields: []string{"ts_code", "symbol", "name", "industry", "exchange", "list_date", "cnspell"},
		Items: [][]any{
			{"600036.SH", "600036", "招商银行", "银行", "SSE", "20020409", "zsyh"},
			{"000001.SZ", "000001", "平安银行", "银行", "SZSE", "19910403", "payh"},
			{"430047.BJ", "430047", "诺思兰德", "生物制药", nil, "20201124", "nsld"},
		},
	}

	got, err := env.fetch(t, "EquitySearch", provider.Params{"query": "zsyh"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "600036", got[0]["symbol"])
	assert.Equal(t, "2002-04-09", got[0]["list_date"])

	got, err = env.fetch(t, "EquitySearch", provider.Params{"query": "zsyh", "is_symbol": true})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = env.fetch(t, "EquitySearch", provider.Params{"query": "430047"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BSE", got[0]["exchange"])
	assert.Equal(t, 1, env.vendor.callCount("stock_basic"))
}

func TestAvailableIndices(t *testing.T) {
	env := newTestEnv(t)
	f := &AvailableIndices{m: env.models}

	sample := provider.Row{
		"ts_code":    "000001.SH",
		"name":       "上证指数",
		"fullname":   "上海证券综合指数",
		"market":     "SSE",
		"publisher":  "上交所",
		"index_type": "综合指数",
		"category":   "股票指数",
		"base_date":  "19901219",
		"base_point": 100.0,
		"list_date":  "19910715",
		"desc":       "上海证券综合指数",
		"exp_date":   nil,
		"currency":   "CNY",
	}
	recs, err := f.TransformData(AvailableIndicesQuery{}, []provider.Row{sample})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "000001.SH", recs[0]["symbol"])
	assert.Equal(t, "上证指数", recs[0]["name"])
	assert.Equal(t, "SSE", recs[0]["market"])
	assert.Equal(t, "CNY", recs[0]["currency"])
	assert.Equal(t, "1990-12-19", recs[0]["base_date"])

	// Rows already keyed by symbol are accepted.
	recs, err = f.TransformData(AvailableIndicesQuery{}, []provider.Row{{"symbol": "000001.SH", "name": "上证指数"}})
	require.NoError(t, err)
	assert.Equal(t, "000001.SH", recs[0]["symbol"])

	q, err := f.TransformQuery(provider.Params{"use_cache": false})
	require.NoError(t, err)
	assert.False(t, q.UseCache)

	env.vendor.tables["index_basic"] = &tushare.Table{
		Fields: []string{"ts_code", "name", "market", "base_point"},
		Items:  [][]any{{"000300.SH", "沪深300", "CSI", 1000.0}},
	}
	got, err := env.fetch(t, "AvailableIndices", provider.Params{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "000300.SH", got[0]["symbol"])
	assert.Equal(t, "CNY", got[0]["currency"])
}

func dailyFixture() *tushare.Table {
	return &tushare.Table{
		Fields: barFields,
		Items: [][]any{
			{"600036.SH", "20240103", 31.5, 32.5, 31.0, 32.0, 31.5, 0.5, 1.5873, 1200.0, 3800.0},
			{"600036.SH", "20240102", 31.0, 32.0, 30.5, 31.5, 31.2, 0.3, 0.9615, 1000.0, 3100.0},
		},
	}
}

func TestHistoricalFetchAndArchive(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["daily"] = dailyFixture()
	params := provider.Params{"symbol": "600036.SS", "start_date": "2024-01-01", "end_date": "2024-01-31"}

	got, err := env.fetch(t, "EquityHistorical", params)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-02", got[0]["date"], "bars are returned oldest first")
	assert.Equal(t, "600036.SH", got[0]["symbol"])
	assert.Equal(t, 31.5, got[0]["close"])
	assert.Equal(t, 1000.0, got[0]["volume"])
	assert.Equal(t, 31.2, got[0]["prev_close"])
	assert.InDelta(t, 0.015873, got[1]["change_percent"], 1e-9)

	call := env.vendor.calls[0]
	assert.Equal(t, "daily", call.api)
	assert.Equal(t, map[string]any{"ts_code": "600036.SH", "start_date": "20240101", "end_date": "20240131"}, call.params)

	// Within the hour the archive serves the same range.
	env.now = env.now.Add(30 * time.Minute)
	again, err := env.fetch(t, "EquityHistorical", params)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, env.vendor.callCount("daily"))

	// After it, the vendor is asked again.
	env.now = env.now.Add(time.Hour)
	_, err = env.fetch(t, "EquityHistorical", params)
	require.NoError(t, err)
	assert.Equal(t, 2, env.vendor.callCount("daily"))

	// use_cache=false always asks.
	params["use_cache"] = false
	_, err = env.fetch(t, "EquityHistorical", params)
	require.NoError(t, err)
	assert.Equal(t, 3, env.vendor.callCount("daily"))

	// The vendor going quiet falls back to archived bars.
	env.vendor.tables["daily"] = &tushare.Table{}
	got, err = env.fetch(t, "EquityHistorical", params)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHistoricalConcurrentSameSymbol(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["daily"] = dailyFixture()
	ep, ok := env.models.Registry().Get("EquityHistorical")
	require.True(t, ok)

	const workers, rounds = 16, 4
	errs := make(chan error, workers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				got, err := ep.Fetch(context.Background(), provider.Params{
					"symbol": "600036.SH", "start_date": "2024-01-01", "end_date": "2024-01-31", "use_cache": false,
				}, nil)
				if err == nil && len(got) != 2 {
					err = errors.New("unexpected bar count")
				}
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, workers*rounds, env.vendor.callCount("daily"))

	bars, err := env.models.deps.Bars.ReadBars(context.Background(), "600036.SH", "daily",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestHistoricalRoutesPeriodsAndMarkets(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["hk_daily"] = &tushare.Table{
		Fields: barFields,
		Items:  [][]any{{"00700.HK", "20240102", 290.0, 295.0, 288.0, 292.0, 289.0, 3.0, 1.04, 1.0e7, 2.9e9}},
	}
	got, err := env.fetch(t, "EquityHistorical", provider.Params{"symbol": "700.HK", "start_date": "2024-01-01", "end_date": "2024-01-05"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "00700.HK", got[0]["symbol"])

	_, err = env.fetch(t, "EquityHistorical", provider.Params{"symbol": "600036.SH", "period": "monthly"})
	assert.ErrorIs(t, err, provider.ErrEmptyData)
	assert.Equal(t, 1, env.vendor.callCount("monthly"))
}

func TestHistoricalVendorErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	boom := &tushare.APIError{API: "daily", Code: 40203, Msg: "rate limited"}
	env.vendor.errs["daily"] = boom

	_, err := env.fetch(t, "EquityHistorical", provider.Params{"symbol": "600036.SH"})
	var apiErr *tushare.APIError
	require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
	assert.Equal(t, 40203, apiErr.Code)
}

func TestEquityQuoteRouting(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["rt_k"] = &tushare.Table{
		Fields: quoteFields,
		Items: [][]any{
			{"600036.SH", "招商银行", 31.0, 31.2, 31.8, 30.9, 31.5, 120000.0, 3.7e8, 31.49, 31.5, "14:59:59"},
		},
	}
	env.vendor.tables["rt_hk_k"] = &tushare.Table{
		Fields: hkQuoteFields,
		Items:  [][]any{{"00700.HK", "腾讯控股", 289.0, 290.0, 295.0, 288.0, 292.0, 1.0e7, 2.9e9}},
	}

	got, err := env.fetch(t, "EquityQuote", provider.Params{"symbol": "sh600036, 700.HK"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, provider.Record{
		"symbol":     "600036.SH",
		"name":       "招商银行",
		"bid":        31.49,
		"ask":        31.5,
		"last_price": 31.5,
		"open":       31.2,
		"high":       31.8,
		"low":        30.9,
		"volume":     120000.0,
		"prev_close": 31.0,
	}, got[0])
	assert.Equal(t, provider.Record{
		"symbol":     "00700.HK",
		"open":       290.0,
		"high":       295.0,
		"low":        288.0,
		"close":      292.0,
		"volume":     1.0e7,
		"prev_close": 289.0,
	}, got[1])

	assert.Equal(t, "600036.SH", env.vendor.calls[0].params["ts_code"])
	assert.Equal(t, "00700.HK", env.vendor.calls[1].params["ts_code"])

	env.vendor.tables = map[string]*tushare.Table{}
	_, err = env.fetch(t, "EquityQuote", provider.Params{"symbol": "600036.SH"})
	assert.ErrorIs(t, err, provider.ErrEmptyData)
}

func TestEquityProfile(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["stock_company"] = &tushare.Table{
		Fields: []string{"ts_code", "com_name", "chairman", "setup_date", "employees", "website"},
		Items:  [][]any{{"600036.SH", "招商银行股份有限公司", "缪建民", "19870331", 112999.0, "www.cmbchina.com"}},
	}
	got, err := env.fetch(t, "EquityInfo", provider.Params{"symbol": "600036"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "招商银行股份有限公司", got[0]["name"])
	assert.Equal(t, "1987-03-31", got[0]["founded"])
	assert.Equal(t, int64(112999), got[0]["employees"])
	assert.Equal(t, "www.cmbchina.com", got[0]["company_url"])

	env.vendor.tables["stock_company"] = &tushare.Table{}
	_, err = env.fetch(t, "EquityInfo", provider.Params{"symbol": "600036"})
	assert.ErrorIs(t, err, provider.ErrEmptyData)
}

func TestStatementsAnnualAndAmended(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["income"] = &tushare.Table{
		Fields: []string{"ts_code", "end_date", "ann_date", "total_revenue", "n_income", "update_flag"},
		Items: [][]any{
			{"600036.SH", "20231231", "20240325", 3.39e11, 1.47e11, "0"},
			{"600036.SH", "20231231", "20240326", 3.40e11, 1.48e11, "1"},
			{"600036.SH", "20230930", "20231027", 2.6e11, 1.1e11, "0"},
			{"600036.SH", "20221231", "20230324", 3.44e11, 1.38e11, "0"},
		},
	}

	got, err := env.fetch(t, "IncomeStatement", provider.Params{"symbol": "600036.SH"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2023-12-31", got[0]["period_ending"])
	assert.Equal(t, 3.40e11, got[0]["total_revenue"], "amended report wins")
	assert.Equal(t, "FY", got[0]["fiscal_period"])
	assert.Equal(t, "2023", got[0]["fiscal_year"])
	assert.Equal(t, "2022-12-31", got[1]["period_ending"])

	got, err = env.fetch(t, "IncomeStatement", provider.Params{"symbol": "600036.SH", "period": "quarter", "limit": 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Q4", got[0]["fiscal_period"])
	assert.Equal(t, "Q3", got[1]["fiscal_period"])

	_, err = env.fetch(t, "IncomeStatement", provider.Params{"symbol": "600036.SH,000001.SZ"})
	var perr *provider.ParamError
	assert.True(t, errors.As(err, &perr))

	_, err = env.fetch(t, "BalanceSheet", provider.Params{"symbol": "600036.SH", "period": "ttm"})
	assert.True(t, errors.As(err, &perr))

	_, err = env.fetch(t, "CashFlowStatement", provider.Params{"symbol": "600036.SH"})
	assert.ErrorIs(t, err, provider.ErrEmptyData)
}

func TestHistoricalDividendsDateFilter(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["dividend"] = &tushare.Table{
		Fields: []string{"ts_code", "end_date", "div_proc", "cash_div_tax", "ex_date", "pay_date"},
		Items: [][]any{
			{"600036.SH", "20231231", "实施", 1.972, "20240711", "20240711"},
			{"600036.SH", "20221231", "实施", 1.738, "20230712", "20230712"},
			{"600036.SH", "20241231", "预案", 2.0, nil, nil},
		},
	}

	got, err := env.fetch(t, "HistoricalDividends", provider.Params{"symbol": "600036.SH"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2023-07-12", got[0]["ex_dividend_date"])
	assert.Equal(t, 1.738, got[0]["amount"])

	got, err = env.fetch(t, "HistoricalDividends", provider.Params{"symbol": "600036.SH", "start_date": "2024-01-01"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-07-11", got[0]["payment_date"])

	_, err = env.fetch(t, "HistoricalDividends", provider.Params{"symbol": "600036.SH", "end_date": "2020-01-01"})
	assert.ErrorIs(t, err, provider.ErrEmptyData)

	_, err = env.fetch(t, "HistoricalDividends", provider.Params{"symbol": "600036.SH", "start_date": "2024/01/01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'start_date' format")
}

func TestHistoricalDividendsRejectsInvertedRange(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.fetch(t, "HistoricalDividends", provider.Params{
		"symbol": "600036.SH", "start_date": "2024-06-01", "end_date": "2024-01-01",
	})
	var perr *provider.ParamError
	require.True(t, errors.As(err, &perr), "got %T: %v", err, err)
	assert.Equal(t, "start_date", perr.Field)
	assert.Empty(t, env.vendor.calls)
}

func TestDatasetRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["fund_basic"] = etfTableFixture()

	var names []string
	for _, d := range env.models.Datasets() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"etf_symbols", "equity_symbols", "available_indices"}, names)

	n, err := env.models.Datasets()[0].Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "default-token", env.vendor.calls[0].token)

	// A refresh replaces the table: funds that disappeared are dropped.
	env.vendor.tables["fund_basic"] = &tushare.Table{
		Fields: []string{"ts_code", "name", "fund_type"},
		Items:  [][]any{{"159919.SZ", "沪深300ETF", "ETF"}},
	}
	n, err = env.models.Datasets()[0].Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rows, err := env.cache.Read(context.Background(), "etf_symbols")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	env.vendor.errs["fund_basic"] = errors.New("down")
	_, err = env.models.Datasets()[0].Refresh(context.Background())
	assert.Error(t, err)
}

func TestCacheErrorsSurfaceFromHistorical(t *testing.T) {
	env := newTestEnv(t)
	env.vendor.tables["daily"] = dailyFixture()
	require.NoError(t, env.cache.Close())

	_, err := env.fetch(t, "EquityHistorical", provider.Params{"symbol": "600036.SH", "use_cache": false})
	var writeErr *store.CacheWriteError
	require.True(t, errors.As(err, &writeErr), "got %T: %v", err, err)
}
