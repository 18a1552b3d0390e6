package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// Status is a candidate's lifecycle state.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusAdmitted   Status = "admitted"
	StatusRejected   Status = "rejected"
	StatusExecuting  Status = "executing"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

var transitions = map[Status][]Status{
	StatusDiscovered: {StatusAdmitted, StatusRejected, StatusExpired},
	StatusAdmitted:   {StatusExecuting, StatusExpired},
	StatusExecuting:  {StatusConfirmed, StatusFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal states accept no further transitions.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// Side is the direction of a single fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Leg is one fill of a multi-step route.
type Leg struct {
	Venue  string            `json:"venue"`
	Symbol instrument.Symbol `json:"symbol"`
	Side   Side              `json:"side"`
	Price  decimal.Decimal   `json:"price"`
}

// Candidate is a detected, not-yet-executed opportunity. For triangular
// routes BuyPrice is 1 and SellPrice is the compounded return, so ProfitPct
// keeps the same derivation for every strategy.
type Candidate struct {
	ID       string            `json:"id"`
	Strategy Strategy          `json:"strategy"`
	Symbol   instrument.Symbol `json:"symbol"`

	BuyVenue  string          `json:"buy_venue"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellVenue string          `json:"sell_venue"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Volume    decimal.Decimal `json:"volume"` // base units

	GrossProfit decimal.Decimal `json:"gross_profit"` // quote currency
	ProfitPct   decimal.Decimal `json:"profit_pct"`
	Fee         decimal.Decimal `json:"fee"`
	NetworkCost decimal.Decimal `json:"network_cost"`
	NetProfit   decimal.Decimal `json:"net_profit"`

	RiskLevel         int           `json:"risk_level"` // 1..5
	Confidence        float64       `json:"confidence"` // 0..100
	LiquidityScore    float64       `json:"liquidity_score"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	CrossChain        bool          `json:"cross_chain"`
	Legs              []Leg         `json:"legs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    Status    `json:"status"`
}

var hundred = decimal.NewFromInt(100)

// ProfitPercent derives (sell-buy)/buy*100.
func ProfitPercent(buy, sell decimal.Decimal) decimal.Decimal {
	if !buy.IsPositive() {
		return decimal.Zero
	}
	return sell.Sub(buy).Div(buy).Mul(hundred)
}

// Notional is the buy-side value in quote currency.
func (c *Candidate) Notional() decimal.Decimal { return c.BuyPrice.Mul(c.Volume) }

// CompositeScore ranks admitted candidates: profit percentage times
// confidence.
func (c *Candidate) CompositeScore() decimal.Decimal {
	return c.ProfitPct.Mul(decimal.NewFromFloat(c.Confidence))
}

func (c *Candidate) CrossVenue() bool { return c.BuyVenue != c.SellVenue }

func (c *Candidate) Leveraged() bool { return c.Strategy.Leveraged() }

// Expired reports whether the deadline has passed at now.
func (c *Candidate) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Validate checks the structural invariants every stored candidate holds.
func (c *Candidate) Validate() error {
	switch {
	case c.ID == "":
		return invalidCandidate(c, "missing id")
	case !c.Symbol.Valid():
		return invalidCandidate(c, "invalid symbol")
	case !c.BuyPrice.IsPositive() || !c.SellPrice.IsPositive():
		return invalidCandidate(c, "non-positive price")
	case !c.SellPrice.GreaterThan(c.BuyPrice):
		return invalidCandidate(c, "sell price not above buy price")
	case !c.ProfitPct.Equal(ProfitPercent(c.BuyPrice, c.SellPrice).Round(ProfitPctPlaces)):
		return invalidCandidate(c, "profit percentage inconsistent with prices")
	case !c.Volume.IsPositive():
		return invalidCandidate(c, "non-positive volume")
	case c.RiskLevel < MinRiskLevel || c.RiskLevel > MaxRiskLevel:
		return invalidCandidate(c, "risk level out of range")
	case c.Confidence < 0 || c.Confidence > 100:
		return invalidCandidate(c, "confidence out of range")
	case c.ExpiresAt.Before(c.CreatedAt):
		return invalidCandidate(c, "expires before creation")
	}
	return nil
}

func invalidCandidate(c *Candidate, reason string) error {
	return apperror.New(apperror.CodeInvalidCandidate,
		apperror.WithContext(fmt.Sprintf("%s: %s", c.ID, reason)))
}

const (
	MinRiskLevel = 1
	MaxRiskLevel = 5

	// ProfitPctPlaces is the declared precision of ProfitPct.
	ProfitPctPlaces = 8
)
