package domain

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioState is the risk engine's view of open risk. DailyLoss is a
// positive number once the day is in the red.
type PortfolioState struct {
	Balance     decimal.Decimal `json:"balance"`
	PeakBalance decimal.Decimal `json:"peak_balance"`
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
	DailyLoss   decimal.Decimal `json:"daily_loss"`
	Day         time.Time       `json:"day"`

	ActivePositions    int                        `json:"active_positions"`
	VenueExposure      map[string]decimal.Decimal `json:"venue_exposure"`
	InstrumentExposure map[string]decimal.Decimal `json:"instrument_exposure"` // keyed by base asset

	VolatilityIndex float64 `json:"volatility_index"` // 0..1
	LiquidityIndex  float64 `json:"liquidity_index"`  // 0..1
	AggregateRisk   float64 `json:"aggregate_risk"`   // mean score of the last assessed batch

	ExecutionEnabled bool      `json:"execution_enabled"`
	Paused           bool      `json:"paused"` // operator hold, independent of the emergency gate
	Emergency        Emergency `json:"emergency"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewPortfolioState returns a flat portfolio with execution enabled.
func NewPortfolioState(balance decimal.Decimal, now time.Time) PortfolioState {
	return PortfolioState{
		Balance:            balance,
		PeakBalance:        balance,
		Day:                startOfDay(now),
		VenueExposure:      map[string]decimal.Decimal{},
		InstrumentExposure: map[string]decimal.Decimal{},
		LiquidityIndex:     1,
		ExecutionEnabled:   true,
		UpdatedAt:          now,
	}
}

// Clone deep-copies the exposure maps.
func (s PortfolioState) Clone() PortfolioState {
	s.VenueExposure = maps.Clone(s.VenueExposure)
	s.InstrumentExposure = maps.Clone(s.InstrumentExposure)
	s.Emergency.Reasons = append([]string(nil), s.Emergency.Reasons...)
	return s
}

// DrawdownPct is the decline from the peak balance, in percent.
func (s PortfolioState) DrawdownPct() float64 {
	if !s.PeakBalance.IsPositive() || !s.Balance.LessThan(s.PeakBalance) {
		return 0
	}
	return s.PeakBalance.Sub(s.Balance).Div(s.PeakBalance).Mul(hundred).InexactFloat64()
}

// ConcentrationPct is the share of the balance held in asset, after adding
// extra.
func (s PortfolioState) ConcentrationPct(asset string, extra decimal.Decimal) float64 {
	if !s.Balance.IsPositive() {
		return 100
	}
	exposure := s.InstrumentExposure[asset].Add(extra)
	return exposure.Div(s.Balance).Mul(hundred).InexactFloat64()
}

// Halted reports whether new executions are blocked.
func (s PortfolioState) Halted() bool {
	return !s.ExecutionEnabled || s.Emergency.ShouldStop || s.Paused
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var hundred = decimal.NewFromInt(100)

// Position is capital committed to one executing candidate.
type Position struct {
	CandidateID string
	Asset       string // base asset
	Venues      []string
	Size        decimal.Decimal // quote currency
}
