// Package app contains the scan pipeline, scheduler and control surface.
package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	detectionApp "github.com/fd1az/arbitrage-scanner/business/detection/app"
	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	execution "github.com/fd1az/arbitrage-scanner/business/execution/app"
	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// MarketData is the read side of the market data service.
type MarketData interface {
	GetLatestTickers(ctx context.Context, symbols []instrument.Symbol, venues []md.Venue) ([]md.Ticker, error)
	Status() md.Status
}

// Detector turns a ticker snapshot into candidates.
type Detector interface {
	DetectWithReport(ctx context.Context, tickers []md.Ticker) detectionApp.Report
	SetNetworkCost(cost decimal.Decimal)
}

// NetworkCostSource quotes the current on-chain transfer cost in quote
// currency.
type NetworkCostSource interface {
	NetworkCost(ctx context.Context) (decimal.Decimal, error)
}

// RiskEngine is the subset of the risk engine the scanner drives.
type RiskEngine interface {
	ObserveMarket(volatility, liquidity float64)
	CheckEmergency(ctx context.Context) risk.Emergency
	ApplyPerformance(ctx context.Context, p risk.Performance) risk.Emergency
	UpdateConfig(ctx context.Context, u risk.Update) (risk.Configuration, error)
	Config() risk.Configuration
	SetPaused(ctx context.Context, paused bool)
	Portfolio() risk.PortfolioState
	Level() string
}

// Executor gates, executes and records candidates.
type Executor interface {
	Process(ctx context.Context, candidates []detection.Candidate) (execution.CycleResult, error)
	ExpireStale(ctx context.Context) (int, error)
	RecentPerformance(ctx context.Context, window time.Duration) (risk.Performance, error)
}

// Reporter displays cycle outcomes to an operator.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context) error

	// ReportCycle renders one finished scan cycle.
	ReportCycle(report CycleReport)

	// UpdateConnectionStatus renders market data connectivity.
	UpdateConnectionStatus(status md.Status)

	// Stop gracefully shuts down the reporter.
	Stop() error
}
