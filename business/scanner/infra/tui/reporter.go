// Package tui forwards scan cycles to the Bubble Tea monitor.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/pkg/ui"
)

// Reporter implements app.Reporter for the Bubble Tea monitor.
type Reporter struct {
	send func(tea.Msg)
}

// NewReporter sends to the running ui.Program.
func NewReporter() *Reporter {
	return NewReporterFunc(ui.Send)
}

// NewReporterFunc sends through fn.
func NewReporterFunc(fn func(tea.Msg)) *Reporter {
	return &Reporter{send: fn}
}

// Start is a no-op; the program is owned by main.
func (r *Reporter) Start(context.Context) error { return nil }

func (r *Reporter) ReportCycle(report app.CycleReport) {
	r.send(ui.CycleMsg{Report: report})
}

func (r *Reporter) UpdateConnectionStatus(status md.Status) {
	r.send(ui.ConnectionStatusMsg{Status: status})
}

func (r *Reporter) Stop() error { return nil }
