// Package console renders scan cycles as text tables for CLI mode.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
)

// Reporter implements app.Reporter for CLI output.
type Reporter struct {
	out io.Writer

	mu        sync.Mutex
	connected map[md.Venue]bool
	quiet     bool // suppress cycles without candidates
}

// NewReporter writes to stdout.
func NewReporter(quiet bool) *Reporter {
	return NewReporterWriter(os.Stdout, quiet)
}

// NewReporterWriter writes to w.
func NewReporterWriter(w io.Writer, quiet bool) *Reporter {
	return &Reporter{out: w, quiet: quiet, connected: make(map[md.Venue]bool)}
}

func (r *Reporter) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "Arbitrage Scanner Started")
	fmt.Fprintln(r.out, "=========================")
	return nil
}

// ReportCycle prints a one-line summary and, when the cycle found
// anything, a table of its candidates.
func (r *Reporter) ReportCycle(rep app.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.quiet && len(rep.Candidates) == 0 && rep.Error == "" {
		return
	}

	res := rep.Result
	fmt.Fprintf(r.out, "[%s] cycle #%d %s | tickers %d (skipped %d) | detected %d admitted %d rejected %d | executed %d ok %d failed %d | profit %s | %s\n",
		rep.StartedAt.Format("15:04:05"),
		rep.Cycle,
		rep.Outcome,
		rep.Tickers, rep.SkippedTickers,
		res.Detected, res.Admitted, res.Rejected,
		res.Executed, res.Confirmed, res.Failed,
		res.Profit.StringFixed(2),
		rep.Duration.Round(time.Millisecond),
	)
	if res.Halted > 0 || res.CircuitOpen > 0 {
		fmt.Fprintf(r.out, "  held back: %d by emergency stop, %d by open breaker\n", res.Halted, res.CircuitOpen)
	}
	if rep.Error != "" {
		fmt.Fprintf(r.out, "  error: %s\n", rep.Error)
	}
	if len(rep.Candidates) == 0 {
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.Header("ID", "Strategy", "Symbol", "Buy", "Sell", "Profit %", "Net", "Conf", "Status")
	for _, c := range rep.Candidates {
		table.Append(
			shortID(c.ID),
			c.Strategy.String(),
			c.Symbol.String(),
			fmt.Sprintf("%s @ %s", c.BuyVenue, c.BuyPrice.StringFixed(2)),
			fmt.Sprintf("%s @ %s", c.SellVenue, c.SellPrice.StringFixed(2)),
			c.ProfitPct.StringFixed(3),
			c.NetProfit.StringFixed(2),
			fmt.Sprintf("%.0f", c.Confidence),
			string(c.Status),
		)
	}
	table.Render()
}

// UpdateConnectionStatus prints venues whose connectivity changed.
func (r *Reporter) UpdateConnectionStatus(status md.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range status.Venues {
		up := v.Connected && !v.Stale
		if prev, ok := r.connected[v.Venue]; ok && prev == up {
			continue
		}
		r.connected[v.Venue] = up

		state := "disconnected"
		switch {
		case up:
			state = "connected"
		case v.Connected:
			state = fmt.Sprintf("stale since %s", v.LastUpdate.Format("15:04:05"))
		}
		fmt.Fprintf(r.out, "[%s] %s: %s\n", time.Now().Format("15:04:05"), v.Venue, state)
	}
}

func (r *Reporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Arbitrage Scanner Stopped")
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
