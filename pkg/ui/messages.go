package ui

import (
	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
)

// Message types for TUI updates

// CycleMsg is sent when a scan cycle finishes.
type CycleMsg struct {
	Report app.CycleReport
}

// ConnectionStatusMsg is sent with market data connectivity after each cycle.
type ConnectionStatusMsg struct {
	Status md.Status
}

// StatusMsg carries a polled scanner snapshot.
type StatusMsg struct {
	Status app.Status
}

// ReadyMsg hands the model its control surface once the modules are up.
type ReadyMsg struct {
	Control Control
}

// ScanDoneMsg is the result of a manual scan.
type ScanDoneMsg struct {
	Report app.CycleReport
	Err    error
}

// PauseMsg reports the execution hold after a toggle.
type PauseMsg struct {
	Paused bool
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg drives animations and status polling.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}
