package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	execution "github.com/fd1az/arbitrage-scanner/business/execution/app"
	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

func TestReporter_ReportCycle(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporterWriter(&buf, false)

	r.ReportCycle(app.CycleReport{
		Cycle:     12,
		StartedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Tickers:   6,
		Outcome:   app.OutcomeExecuted,
		Result:    execution.CycleResult{Detected: 1, Admitted: 1, Executed: 1, Confirmed: 1, Profit: decimal.RequireFromString("4.2")},
		Candidates: []detection.Candidate{{
			ID:        "0c8f6a1e-aaaa-bbbb",
			Strategy:  detection.StrategyDirect,
			Symbol:    instrument.NewSymbol("ETH", "USDT"),
			BuyVenue:  "binance",
			BuyPrice:  decimal.NewFromInt(100),
			SellVenue: "kraken",
			SellPrice: decimal.NewFromInt(101),
			ProfitPct: decimal.NewFromInt(1),
			NetProfit: decimal.RequireFromString("4.2"),
			Status:    detection.StatusConfirmed,
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "cycle #12 executed")
	assert.Contains(t, out, "profit 4.20")
	assert.Contains(t, out, "0c8f6a1e")
	assert.NotContains(t, out, "0c8f6a1e-aaaa")
	assert.Contains(t, out, "ETH/USDT")
	assert.Contains(t, out, "binance @ 100.00")
	assert.Contains(t, out, "confirmed")
	assert.NotContains(t, out, "held back")
}

func TestReporter_HeldBackCandidates(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporterWriter(&buf, false)

	r.ReportCycle(app.CycleReport{
		Cycle:   3,
		Outcome: app.OutcomeAdapterErrors,
		Result:  execution.CycleResult{Detected: 4, Admitted: 4, Executed: 1, Halted: 2, CircuitOpen: 1},
	})
	assert.Contains(t, buf.String(), "held back: 2 by emergency stop, 1 by open breaker")
}

func TestReporter_QuietSkipsEmptyCycles(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporterWriter(&buf, true)

	r.ReportCycle(app.CycleReport{Cycle: 1, Outcome: app.OutcomeNoCandidates})
	assert.Empty(t, buf.String())

	r.ReportCycle(app.CycleReport{Cycle: 2, Outcome: app.OutcomeHalted, Error: "persistence unavailable"})
	assert.Contains(t, buf.String(), "error: persistence unavailable")
}

func TestReporter_ConnectionChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporterWriter(&buf, false)

	up := md.Status{Venues: []md.VenueStatus{{Venue: "binance", Connected: true}}}
	r.UpdateConnectionStatus(up)
	r.UpdateConnectionStatus(up)
	assert.Equal(t, 1, strings.Count(buf.String(), "binance: connected"))

	r.UpdateConnectionStatus(md.Status{Venues: []md.VenueStatus{{Venue: "binance", Connected: true, Stale: true}}})
	assert.Contains(t, buf.String(), "binance: stale since")
}
