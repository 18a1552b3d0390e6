package ui

import (
	"context"
	"fmt"

	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/pkg/ui/components"
)

// Control is the part of the scanner controller the monitor drives.
type Control interface {
	GetStatus() app.Status
	Scan(ctx context.Context) (app.CycleReport, error)
	TogglePause(ctx context.Context) bool
}

func candidateRows(r app.CycleReport) []components.CandidateRow {
	rows := make([]components.CandidateRow, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		rows = append(rows, components.CandidateRow{
			Time:      r.StartedAt.Format("15:04:05"),
			Cycle:     r.Cycle,
			ID:        shortID(c.ID),
			Strategy:  c.Strategy.String(),
			Symbol:    c.Symbol.String(),
			Route:     fmt.Sprintf("%s→%s", c.BuyVenue, c.SellVenue),
			ProfitPct: c.ProfitPct,
			NetProfit: c.NetProfit,
			Status:    string(c.Status),
		})
	}
	return rows
}

func venueRows(s md.Status) []components.VenueRow {
	rows := make([]components.VenueRow, 0, len(s.Venues))
	for _, v := range s.Venues {
		rows = append(rows, components.VenueRow{
			Venue:      v.Venue.String(),
			Connected:  v.Connected,
			Stale:      v.Stale,
			LastUpdate: v.LastUpdate,
		})
	}
	return rows
}

func statsOf(s app.Status) components.Stats {
	return components.Stats{
		Cycles:        s.CycleCount,
		Skipped:       s.SkippedCycles,
		InFlight:      s.InFlight,
		Opportunities: s.TotalOpportunities,
		Successful:    s.SuccessfulTrades,
		Failed:        s.FailedTrades,
		AdapterErrors: s.AdapterErrors,
		Profit:        s.TotalProfit,
	}
}

func riskOf(s app.Status) components.RiskState {
	p := s.Portfolio
	return components.RiskState{
		Level:            s.RiskLevel,
		ExecutionEnabled: s.ExecutionEnabled,
		Paused:           s.Paused,
		Halted:           s.Halted,
		Balance:          p.Balance,
		DailyPnL:         p.DailyPnL,
		DailyLoss:        p.DailyLoss,
		ActivePositions:  p.ActivePositions,
		Volatility:       p.VolatilityIndex,
		Liquidity:        p.LiquidityIndex,
		Reasons:          p.Emergency.Reasons,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
