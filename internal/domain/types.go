// Package domain defines the core value types shared across the provider:
// markets, bar periods, and daily price bars.
package domain

import "time"

// Market identifies an exchange served by Tushare. The value is the suffix
// used in a canonical ts_code (e.g. "600036.SH").
type Market string

const (
	MarketSH Market = "SH" // Shanghai Stock Exchange
	MarketSZ Market = "SZ" // Shenzhen Stock Exchange
	MarketBJ Market = "BJ" // Beijing Stock Exchange
	MarketHK Market = "HK" // Hong Kong Exchanges
)

// SupportedMarkets is the allow-list of markets a symbol may resolve to.
var SupportedMarkets = []Market{MarketSH, MarketSZ, MarketBJ, MarketHK}

// Supported reports whether m is in SupportedMarkets.
func (m Market) Supported() bool {
	for _, s := range SupportedMarkets {
		if m == s {
			return true
		}
	}
	return false
}

// Exchange returns the long exchange code used in host data records
// ("SSE", "SZSE", "BSE", "HKEX"). Unknown markets are returned unchanged.
func (m Market) Exchange() string {
	switch m {
	case MarketSH:
		return "SSE"
	case MarketSZ:
		return "SZSE"
	case MarketBJ:
		return "BSE"
	case MarketHK:
		return "HKEX"
	}
	return string(m)
}

// Period is the bar interval of a historical price request.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Valid reports whether p is one of the supported periods.
func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly || p == PeriodMonthly
}

// Bar is one OHLCV bar as returned by the Tushare daily/weekly/monthly APIs.
// Volume is in lots (100 shares) and Amount in thousands of CNY, as the
// vendor reports them.
type Bar struct {
	Symbol   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	PreClose float64
	Change   float64
	PctChg   float64
	Volume   float64
	Amount   float64
}
