package domain

import (
	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// AmountPlaces is the precision of amounts sent to an adapter.
const AmountPlaces = 8

// Leg is one sized fill of a request's route.
type Leg struct {
	Venue  string            `json:"venue"`
	Symbol instrument.Symbol `json:"symbol"`
	Side   detection.Side    `json:"side"`
	Price  decimal.Decimal   `json:"price"`
	Amount decimal.Decimal   `json:"amount"` // base units of Symbol
}

// Request asks an adapter to place one trade. Symbol, Side and Amount
// describe the opening leg; Legs carries every fill of the route in its
// own units. The route fields let an adapter price both ends of an
// arbitrage.
type Request struct {
	CandidateID    string             `json:"client_order_id"`
	Strategy       detection.Strategy `json:"strategy"`
	Symbol         instrument.Symbol  `json:"symbol"`
	Side           detection.Side     `json:"side"`
	Amount         decimal.Decimal    `json:"amount"` // base units of Symbol
	Notional       decimal.Decimal    `json:"notional"`
	MaxSlippagePct float64            `json:"max_slippage_pct"`
	Legs           []Leg              `json:"legs"`

	BuyVenue    string          `json:"buy_venue"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	SellVenue   string          `json:"sell_venue"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	FeePct      decimal.Decimal `json:"fee_pct"` // of the candidate's notional
	NetworkCost decimal.Decimal `json:"network_cost"`
}

// Result is the adapter's report. A venue-side rejection is Success=false
// with Error set; transport failures are returned as errors instead.
type Result struct {
	Success        bool            `json:"success"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	RealizedAmount decimal.Decimal `json:"realized_amount"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	Error          string          `json:"error,omitempty"`
}

// NewRequest sizes a request for c. size is the notional in the currency
// the candidate is priced in; each leg gets it converted into that leg's
// base units, truncated to AmountPlaces.
func NewRequest(c *detection.Candidate, size decimal.Decimal, maxSlippagePct float64) Request {
	legs := sizeLegs(c, size)

	feePct := decimal.Zero
	if n := c.Notional(); n.IsPositive() {
		feePct = c.Fee.Div(n).Mul(decimal.NewFromInt(100))
	}

	first := legs[0]
	return Request{
		CandidateID:    c.ID,
		Strategy:       c.Strategy,
		Symbol:         first.Symbol,
		Side:           first.Side,
		Amount:         first.Amount,
		Notional:       size,
		MaxSlippagePct: maxSlippagePct,
		Legs:           legs,
		BuyVenue:       c.BuyVenue,
		BuyPrice:       c.BuyPrice,
		SellVenue:      c.SellVenue,
		SellPrice:      c.SellPrice,
		FeePct:         feePct,
		NetworkCost:    c.NetworkCost,
	}
}

// sizeLegs converts size into per-leg amounts. A triangular route carries
// its holding from leg to leg: a buy spends it at the leg's price and a
// sell delivers it. Every other route trades one base amount on each leg.
func sizeLegs(c *detection.Candidate, size decimal.Decimal) []Leg {
	if c.Strategy == detection.StrategyTriangular && len(c.Legs) > 0 {
		out := make([]Leg, len(c.Legs))
		held := size
		for i, l := range c.Legs {
			leg := Leg{Venue: l.Venue, Symbol: l.Symbol, Side: l.Side, Price: l.Price}
			switch {
			case !l.Price.IsPositive():
				held = decimal.Zero
			case l.Side == detection.SideBuy:
				leg.Amount = held.Div(l.Price).Truncate(AmountPlaces)
				held = leg.Amount
			default:
				leg.Amount = held.Truncate(AmountPlaces)
				held = leg.Amount.Mul(l.Price)
			}
			out[i] = leg
		}
		return out
	}

	amount := decimal.Zero
	if c.BuyPrice.IsPositive() {
		amount = size.Div(c.BuyPrice).Truncate(AmountPlaces)
	}
	if len(c.Legs) == 0 {
		return []Leg{
			{Venue: c.BuyVenue, Symbol: c.Symbol, Side: detection.SideBuy, Price: c.BuyPrice, Amount: amount},
			{Venue: c.SellVenue, Symbol: c.Symbol, Side: detection.SideSell, Price: c.SellPrice, Amount: amount},
		}
	}
	out := make([]Leg, len(c.Legs))
	for i, l := range c.Legs {
		out[i] = Leg{Venue: l.Venue, Symbol: l.Symbol, Side: l.Side, Price: l.Price, Amount: amount}
	}
	return out
}
