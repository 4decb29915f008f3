// Package symbol converts ticker strings from other vendors and user input
// into Tushare's canonical "<code>.<exchange>" form and validates that the
// resulting market can be served.
package symbol

import (
	"fmt"
	"strings"

	"github.com/markqiu/openbb-tushare/internal/domain"
)

// suffixes maps every recognised exchange tag, including other vendors'
// conventions (Yahoo ".SS", Google "SHA"/"SHE"), to a Tushare market.
var suffixes = map[string]domain.Market{
	"SH":   domain.MarketSH,
	"SS":   domain.MarketSH,
	"SHA":  domain.MarketSH,
	"SSE":  domain.MarketSH,
	"SZ":   domain.MarketSZ,
	"SHE":  domain.MarketSZ,
	"SZSE": domain.MarketSZ,
	"BJ":   domain.MarketBJ,
	"BSE":  domain.MarketBJ,
	"HK":   domain.MarketHK,
	"HKEX": domain.MarketHK,
}

// prefixes are the market tags accepted in front of the code, as in
// "sh600036" or BaoStock's "sh.600036".
var prefixes = map[string]domain.Market{
	"SH": domain.MarketSH,
	"SZ": domain.MarketSZ,
	"BJ": domain.MarketBJ,
	"HK": domain.MarketHK,
}

// UnsupportedMarketError reports a symbol whose market is not served by
// Tushare, or which could not be resolved to a market at all.
type UnsupportedMarketError struct {
	Field  string
	Symbol string
}

func (e *UnsupportedMarketError) Error() string {
	return fmt.Sprintf("Invalid '%s' market for Tushare: %q", e.Field, e.Symbol)
}

// Symbol is a parsed canonical ticker.
type Symbol struct {
	Base   string
	Market domain.Market
}

// String returns the canonical "BASE.MARKET" form.
func (s Symbol) String() string {
	return s.Base + "." + string(s.Market)
}

// Normalize maps one raw ticker to canonical form. Input it cannot place in
// a market is returned trimmed and upper-cased but otherwise unchanged, so
// that validation can reject it. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return s
	}

	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		left, right := s[:i], s[i+1:]
		if m, ok := suffixes[right]; ok && left != "" {
			return canonical(left, m)
		}
		if m, ok := prefixes[left]; ok && isDigits(right) {
			return canonical(right, m)
		}
		return s
	}

	if len(s) > 2 {
		if m, ok := prefixes[s[:2]]; ok && isDigits(s[2:]) {
			return canonical(s[2:], m)
		}
	}

	if isDigits(s) {
		if m, ok := inferMarket(s); ok {
			return canonical(s, m)
		}
	}
	return s
}

// NormalizeList normalizes each entry of a comma separated list and rejoins
// them in input order. Entries are not deduplicated.
func NormalizeList(raw string) string {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = Normalize(p)
	}
	return strings.Join(parts, ",")
}

// Parse normalizes raw and validates the result against the supported
// markets. field names the query parameter for the error message.
func Parse(raw, field string) (Symbol, error) {
	s := Normalize(raw)
	i := strings.LastIndexByte(s, '.')
	if i <= 0 {
		return Symbol{}, &UnsupportedMarketError{Field: field, Symbol: strings.TrimSpace(raw)}
	}
	base, market := s[:i], domain.Market(s[i+1:])
	if !market.Supported() || !isAlnum(base) {
		return Symbol{}, &UnsupportedMarketError{Field: field, Symbol: strings.TrimSpace(raw)}
	}
	return Symbol{Base: base, Market: market}, nil
}

// ParseList normalizes and validates every entry of a comma separated list
// and returns the canonical list. The first invalid entry fails the whole
// list.
func ParseList(raw, field string) ([]Symbol, error) {
	parts := strings.Split(raw, ",")
	out := make([]Symbol, 0, len(parts))
	for _, p := range parts {
		sym, err := Parse(p, field)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}

// Join renders symbols as a canonical comma separated list.
func Join(symbols []Symbol) string {
	parts := make([]string, len(symbols))
	for i, s := range symbols {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// canonical pads Hong Kong codes to Tushare's five digits.
func canonical(base string, m domain.Market) string {
	if m == domain.MarketHK && isDigits(base) && len(base) < 5 {
		base = strings.Repeat("0", 5-len(base)) + base
	}
	return base + "." + string(m)
}

// inferMarket places a bare numeric code by its length and leading digits.
// Prefixes used by more than one exchange are left unresolved: 9xxxxx is both
// Shanghai B-shares and new Beijing listings, 11xxxx and 20xxxx are bonds and
// repos on either exchange.
func inferMarket(code string) (domain.Market, bool) {
	switch len(code) {
	case 5:
		return domain.MarketHK, true
	case 6:
		switch code[0] {
		case '6', '5':
			return domain.MarketSH, true
		case '0', '3':
			return domain.MarketSZ, true
		case '4', '8':
			return domain.MarketBJ, true
		case '1':
			// Shenzhen ETFs and LOFs.
			if code[1] == '5' || code[1] == '6' {
				return domain.MarketSZ, true
			}
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
