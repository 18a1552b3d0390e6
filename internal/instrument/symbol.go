// Package instrument identifies tradable pairs, their assets and the chains
// and venues they settle on.
package instrument

import (
	"fmt"
	"strings"
)

// Symbol is a base/quote pair such as BTC/USDT.
type Symbol struct {
	Base  string
	Quote string
}

// NewSymbol normalizes both legs to upper case.
func NewSymbol(base, quote string) Symbol {
	return Symbol{Base: strings.ToUpper(strings.TrimSpace(base)), Quote: strings.ToUpper(strings.TrimSpace(quote))}
}

// Parse accepts "BTC/USDT", "BTC-USDT" and "btc_usdt".
func Parse(s string) (Symbol, error) {
	for _, sep := range []string{"/", "-", "_"} {
		if base, quote, ok := strings.Cut(s, sep); ok {
			sym := NewSymbol(base, quote)
			if !sym.Valid() {
				return Symbol{}, fmt.Errorf("instrument: invalid symbol %q", s)
			}
			return sym, nil
		}
	}
	return Symbol{}, fmt.Errorf("instrument: symbol %q has no separator", s)
}

// MustParse is Parse for fixtures and constants.
func MustParse(s string) Symbol {
	sym, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sym
}

// ParseAll parses a list, failing on the first bad entry.
func ParseAll(ss []string) ([]Symbol, error) {
	out := make([]Symbol, 0, len(ss))
	for _, s := range ss {
		sym, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}

func (s Symbol) Valid() bool {
	return s.Base != "" && s.Quote != "" && s.Base != s.Quote &&
		!strings.ContainsAny(s.Base, "/-_ ") && !strings.ContainsAny(s.Quote, "/-_ ")
}

func (s Symbol) String() string { return s.Base + "/" + s.Quote }

// Compact is the exchange form, e.g. BTCUSDT.
func (s Symbol) Compact() string { return s.Base + s.Quote }

// Inverse swaps base and quote.
func (s Symbol) Inverse() Symbol { return Symbol{Base: s.Quote, Quote: s.Base} }

// Involves reports whether asset is either leg.
func (s Symbol) Involves(asset string) bool { return s.Base == asset || s.Quote == asset }
