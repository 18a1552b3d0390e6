// Package domain contains execution records, the adapter contract and the
// admission gate.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// ExecutedTrade is the immutable record of one execution attempt that
// reached the adapter.
type ExecutedTrade struct {
	ID             string             `json:"id"`
	CandidateID    string             `json:"candidate_id"`
	Strategy       detection.Strategy `json:"strategy"`
	Symbol         instrument.Symbol  `json:"symbol"`
	Side           detection.Side     `json:"side"`
	BuyVenue       string             `json:"buy_venue"`
	SellVenue      string             `json:"sell_venue"`
	AmountTraded   decimal.Decimal    `json:"amount_traded"` // base units as reported by the adapter
	PositionSize   decimal.Decimal    `json:"position_size"` // quote currency
	ExpectedProfit decimal.Decimal    `json:"expected_profit"`
	ProfitRealized decimal.Decimal    `json:"profit_realized"`
	Status         detection.Status   `json:"status"` // confirmed or failed
	ExternalRef    string             `json:"external_ref,omitempty"`
	Error          string             `json:"error,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    time.Time          `json:"completed_at"`
}

func (t *ExecutedTrade) Succeeded() bool { return t.Status == detection.StatusConfirmed }

func (t *ExecutedTrade) Duration() time.Duration { return t.CompletedAt.Sub(t.StartedAt) }
