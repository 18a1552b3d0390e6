// Package app contains the execution orchestrator and its ports.
package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
)

// Adapter places trades. It is called at most once per candidate; retries
// inside an adapter are its own concern.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, req domain.Request) (domain.Result, error)
}

// Store persists candidates and executed trades.
type Store interface {
	SaveCandidate(ctx context.Context, c *detection.Candidate) error
	UpdateCandidateStatus(ctx context.Context, id string, status detection.Status, reason string) error
	SaveExecutedTrade(ctx context.Context, t *domain.ExecutedTrade) error
	// LoadRecentTrades returns trades completed at or after since, oldest
	// first.
	LoadRecentTrades(ctx context.Context, since time.Time) ([]domain.ExecutedTrade, error)
	// ExpireCandidates moves discovered and admitted candidates whose
	// deadline is at or before now to expired.
	ExpireCandidates(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Claimer reserves a candidate id across processes. Claim returns false
// when another holder owns the id.
type Claimer interface {
	Claim(ctx context.Context, candidateID string) (bool, error)
	Release(ctx context.Context, candidateID string) error
}

// TradePublisher emits executed trades to downstream consumers.
type TradePublisher interface {
	PublishTrade(ctx context.Context, t *domain.ExecutedTrade) error
	Close() error
}

// RiskEngine is the part of the risk engine the orchestrator drives.
type RiskEngine interface {
	AssessBatch(ctx context.Context, cs []detection.Candidate) ([]risk.Assessment, risk.PortfolioState)
	Config() risk.Configuration
	// CheckEmergency re-evaluates the hard limits against the portfolio
	// as it stands now.
	CheckEmergency(ctx context.Context) risk.Emergency
}

// Portfolio receives position changes.
type Portfolio interface {
	Open(p risk.Position) bool
	Close(candidateID string, pnl decimal.Decimal) bool
}
