// Package domain contains the canonical market data types.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// Venue identifies a trading venue, e.g. "binance".
type Venue string

func (v Venue) String() string { return string(v) }

// Key identifies the latest ticker slot.
type Key struct {
	Venue  Venue
	Symbol instrument.Symbol
}

func (k Key) String() string { return string(k.Venue) + ":" + k.Symbol.String() }

// Ticker is one top-of-book observation. Newer observations supersede older
// ones; tickers are never mutated.
type Ticker struct {
	Venue     Venue
	Symbol    instrument.Symbol
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Volume24h decimal.Decimal // quote currency
	ChangePct decimal.Decimal // 24h price change, percent
	Timestamp time.Time
}

func (t Ticker) Key() Key { return Key{Venue: t.Venue, Symbol: t.Symbol} }

// Mid is the bid/ask midpoint.
func (t Ticker) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// SpreadPct is (ask-bid)/bid*100.
func (t Ticker) SpreadPct() decimal.Decimal {
	if !t.Bid.IsPositive() {
		return decimal.Zero
	}
	return t.Ask.Sub(t.Bid).Div(t.Bid).Mul(decimal.NewFromInt(100))
}

// Validate checks 0 < bid <= ask <= maxPrice. A zero maxPrice skips the
// upper bound.
func (t Ticker) Validate(maxPrice decimal.Decimal) error {
	switch {
	case t.Venue == "":
		return invalid(t, "missing venue")
	case !t.Symbol.Valid():
		return invalid(t, "invalid symbol")
	case t.Timestamp.IsZero():
		return invalid(t, "missing timestamp")
	case !t.Bid.IsPositive() || !t.Ask.IsPositive():
		return invalid(t, "non-positive price")
	case t.Bid.GreaterThan(t.Ask):
		return invalid(t, "bid above ask")
	case maxPrice.IsPositive() && t.Ask.GreaterThan(maxPrice):
		return invalid(t, "price above bound")
	case t.Volume24h.IsNegative():
		return invalid(t, "negative volume")
	}
	return nil
}

func invalid(t Ticker, reason string) error {
	return apperror.New(apperror.CodeInvalidTicker,
		apperror.WithContext(fmt.Sprintf("%s %s: %s", t.Venue, t.Symbol, reason)))
}
