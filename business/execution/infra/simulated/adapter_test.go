package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
)

func request(id string) domain.Request {
	return domain.Request{
		CandidateID:    id,
		Amount:         decimal.NewFromInt(2),
		MaxSlippagePct: 1,
		BuyPrice:       decimal.NewFromInt(100),
		SellPrice:      decimal.NewFromInt(102),
		FeePct:         decimal.RequireFromString("0.5"),
		NetworkCost:    decimal.RequireFromString("0.25"),
	}
}

func TestFill(t *testing.T) {
	// gross (102-100)*2 = 4, fee 200*0.5% = 1, network 0.25
	assert.Equal(t, "2.75", Fill(request("a"), 0).String())

	// 0.5% slip: buy 100.5, sell 101.49, gross 1.98
	assert.Equal(t, "0.73", Fill(request("a"), 0.5).String())
}

func TestFill_TriangularUsesNotional(t *testing.T) {
	req := domain.Request{
		CandidateID: "tri",
		Strategy:    detection.StrategyTriangular,
		Amount:      decimal.RequireFromString("0.005"), // BTC bought on the first leg
		Notional:    decimal.NewFromInt(500),            // USDT staked
		BuyPrice:    decimal.NewFromInt(1),
		SellPrice:   decimal.RequireFromString("1.004"),
	}
	// 0.4% on the 500 USDT stake
	assert.Equal(t, "2", Fill(req, 0).String())
}

func TestAdapter_Deterministic(t *testing.T) {
	a := New(Config{SlippagePct: 0.3, FailureRate: 0.2, Seed: 42})

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		r1, err := a.Execute(context.Background(), request(id))
		require.NoError(t, err)
		r2, err := a.Execute(context.Background(), request(id))
		require.NoError(t, err)
		assert.Equal(t, r1.Success, r2.Success, id)
		assert.True(t, r1.RealizedProfit.Equal(r2.RealizedProfit), id)
		assert.Equal(t, r1.ExternalRef, r2.ExternalRef)
	}
}

func TestAdapter_NoNoiseFillsAtQuotes(t *testing.T) {
	a := New(Config{Seed: 1})
	res, err := a.Execute(context.Background(), request("exact"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "2", res.RealizedAmount.String())
	assert.Equal(t, "2.75", res.RealizedProfit.String())
	assert.NotEmpty(t, res.ExternalRef)
}

func TestAdapter_AlwaysFails(t *testing.T) {
	a := New(Config{FailureRate: 1, Seed: 1})
	res, err := a.Execute(context.Background(), request("x"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.True(t, res.RealizedProfit.IsZero())
}

func TestAdapter_SlippageAboveLimit(t *testing.T) {
	a := New(Config{SlippagePct: 50, Seed: 3})
	req := request("slip")
	req.MaxSlippagePct = 0.0001

	res, err := a.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "slippage")
}

func TestAdapter_HonoursCancellation(t *testing.T) {
	a := New(Config{Latency: time.Second, Seed: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Execute(ctx, request("slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
