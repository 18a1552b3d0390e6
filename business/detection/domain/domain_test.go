package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

func TestNewGasCost(t *testing.T) {
	tests := []struct {
		name        string
		gasLimit    uint64
		gasPriceWei string
		nativePrice string
		wantNative  string
		wantQuote   string
	}{
		{
			name:        "standard_gas_25gwei_3400eth",
			gasLimit:    200_000,
			gasPriceWei: "25000000000",
			nativePrice: "3400",
			wantNative:  "0.005",
			wantQuote:   "17",
		},
		{
			name:        "high_gas_100gwei",
			gasLimit:    200_000,
			gasPriceWei: "100000000000",
			nativePrice: "3400",
			wantNative:  "0.02",
			wantQuote:   "68",
		},
		{
			name:        "low_gas_5gwei",
			gasLimit:    200_000,
			gasPriceWei: "5000000000",
			nativePrice: "3400",
			wantNative:  "0.001",
			wantQuote:   "3.4",
		},
		{
			name:        "zero_gas_price",
			gasLimit:    200_000,
			gasPriceWei: "0",
			nativePrice: "3400",
			wantNative:  "0",
			wantQuote:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wei, _ := new(big.Int).SetString(tt.gasPriceWei, 10)
			got := NewGasCost(tt.gasLimit, wei, decimal.RequireFromString(tt.nativePrice))

			assert.True(t, got.Native.Equal(decimal.RequireFromString(tt.wantNative)), "native %s, want %s", got.Native, tt.wantNative)
			assert.True(t, got.Quote.Equal(decimal.RequireFromString(tt.wantQuote)), "quote %s, want %s", got.Quote, tt.wantQuote)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDiscovered, StatusAdmitted, true},
		{StatusDiscovered, StatusRejected, true},
		{StatusDiscovered, StatusExpired, true},
		{StatusDiscovered, StatusExecuting, false},
		{StatusAdmitted, StatusExecuting, true},
		{StatusAdmitted, StatusExpired, true},
		{StatusExecuting, StatusConfirmed, true},
		{StatusExecuting, StatusFailed, true},
		{StatusExecuting, StatusExpired, false},
		{StatusConfirmed, StatusFailed, false},
		{StatusExpired, StatusAdmitted, false},
		{StatusRejected, StatusAdmitted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}

	for _, s := range []Status{StatusConfirmed, StatusFailed, StatusExpired, StatusRejected} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
}

func TestStrategy_RoundTripsThroughText(t *testing.T) {
	for _, s := range Strategies() {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got Strategy
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	_, err := ParseStrategy("flash_loan")
	assert.Error(t, err)
}

func validCandidate() Candidate {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buy := decimal.RequireFromString("100")
	sell := decimal.RequireFromString("101")
	return Candidate{
		ID:         "c1",
		Strategy:   StrategyDirect,
		Symbol:     instrument.MustParse("BTC/USDT"),
		BuyVenue:   "kraken",
		BuyPrice:   buy,
		SellVenue:  "binance",
		SellPrice:  sell,
		Volume:     decimal.NewFromInt(1),
		ProfitPct:  ProfitPercent(buy, sell).Round(ProfitPctPlaces),
		RiskLevel:  2,
		Confidence: 80,
		CreatedAt:  now,
		ExpiresAt:  now.Add(30 * time.Second),
		Status:     StatusDiscovered,
	}
}

func TestCandidate_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Candidate)
		ok     bool
	}{
		{"valid", func(*Candidate) {}, true},
		{"sell not above buy", func(c *Candidate) { c.SellPrice = c.BuyPrice }, false},
		{"hand-set profit", func(c *Candidate) { c.ProfitPct = decimal.NewFromInt(5) }, false},
		{"zero volume", func(c *Candidate) { c.Volume = decimal.Zero }, false},
		{"risk level", func(c *Candidate) { c.RiskLevel = 6 }, false},
		{"confidence", func(c *Candidate) { c.Confidence = 101 }, false},
		{"missing id", func(c *Candidate) { c.ID = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidCandidate), "err = %v", err)
		})
	}
}

func TestCandidate_ExpiredAndScore(t *testing.T) {
	c := validCandidate()
	assert.False(t, c.Expired(c.CreatedAt), "fresh candidate reported expired")
	assert.True(t, c.Expired(c.ExpiresAt), "candidate at deadline should be expired")
	assert.True(t, c.CompositeScore().Equal(decimal.NewFromInt(80)), c.CompositeScore().String())
}

func TestProfitPolicy(t *testing.T) {
	p := ProfitPolicy{
		MinPct: decimal.RequireFromString("0.3"),
		MaxPct: decimal.NewFromInt(50),
		PerStrategy: map[Strategy]decimal.Decimal{
			StrategyTriangular: decimal.RequireFromString("0.5"),
			StrategyMomentum:   decimal.RequireFromString("0.1"),
		},
	}

	tests := []struct {
		name     string
		strategy Strategy
		pct      string
		want     bool
	}{
		{"direct at floor", StrategyDirect, "0.3", true},
		{"direct below floor", StrategyDirect, "0.29", false},
		{"override raises floor", StrategyTriangular, "0.4", false},
		{"override met", StrategyTriangular, "0.5", true},
		{"override cannot lower floor", StrategyMomentum, "0.2", false},
		{"glitch bound", StrategyDirect, "50.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Accepts(tt.strategy, decimal.RequireFromString(tt.pct)))
		})
	}

	assert.True(t, p.MinFor(StrategyMomentum).Equal(p.MinPct), "momentum override must not lower the floor")
}
