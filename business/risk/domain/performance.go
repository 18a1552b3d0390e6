package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeOutcome is the part of an executed trade the risk engine tracks.
type TradeOutcome struct {
	Profit  decimal.Decimal
	Success bool
	At      time.Time
}

// Performance summarises outcomes over a trailing window.
type Performance struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Trades      int             `json:"trades"`
	Successful  int             `json:"successful"`
	Failed      int             `json:"failed"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	AvgProfit   decimal.Decimal `json:"avg_profit"`
	WinRate     float64         `json:"win_rate"` // 0..1 over successful trades
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
}

// Rollup aggregates outcomes inside (now-window, now].
func Rollup(outcomes []TradeOutcome, window time.Duration, now time.Time) Performance {
	p := Performance{From: now.Add(-window), To: now}
	day := startOfDay(now)
	wins := 0

	for _, o := range outcomes {
		if !o.At.After(p.From) || o.At.After(now) {
			continue
		}
		p.Trades++
		if !o.Success {
			p.Failed++
			continue
		}
		p.Successful++
		p.TotalProfit = p.TotalProfit.Add(o.Profit)
		if o.Profit.IsPositive() {
			wins++
		}
		if !o.At.Before(day) {
			p.DailyPnL = p.DailyPnL.Add(o.Profit)
		}
	}

	if p.Successful > 0 {
		p.AvgProfit = p.TotalProfit.Div(decimal.NewFromInt(int64(p.Successful)))
		p.WinRate = float64(wins) / float64(p.Successful)
	}
	return p
}

// VolatilityIndex maps the mean absolute 24h change onto 0..1, saturating
// at a 10% average move.
func VolatilityIndex(changesPct []decimal.Decimal) float64 {
	if len(changesPct) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range changesPct {
		sum += c.Abs().InexactFloat64()
	}
	return clamp(sum/float64(len(changesPct))/10, 0, 1)
}

// LiquidityIndex is the mean of 0..100 liquidity scores, scaled to 0..1.
func LiquidityIndex(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += clamp(s, 0, 100)
	}
	return sum / float64(len(scores)) / 100
}
