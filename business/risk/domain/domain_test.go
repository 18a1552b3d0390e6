package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testConfig() Configuration {
	return Configuration{
		PortfolioBalance:     decimal.NewFromInt(10000),
		MaxDailyLoss:         decimal.NewFromInt(500),
		MaxPositionSize:      decimal.NewFromInt(2000),
		MinPositionSize:      decimal.NewFromInt(10),
		MaxConcurrentTrades:  5,
		MaxFractionPerTrade:  decimal.RequireFromString("0.1"),
		MaxSlippagePct:       0.5,
		MinLiquidityScore:    30,
		MaxNetworkCost:       decimal.NewFromInt(50),
		MaxExecutionTime:     time.Minute,
		EmergencyDrawdownPct: 15,
		MaxConcentrationPct:  40,
		VolatilityMultiplier: 0.5,
		HighVolatilityIndex:  0.8,
		LowRiskThreshold:     30,
		MidRiskThreshold:     60,
		KellyFraction:        0.5,
		MaxKellyFraction:     0.25,
		TargetAllocation:     map[instrument.Class]float64{instrument.ClassCrypto: 0.7},
		Penalties:            DefaultPenalties(),
	}
}

func testCandidate() *detection.Candidate {
	return &detection.Candidate{
		ID:                "c-1",
		Strategy:          detection.StrategyDirect,
		Symbol:            instrument.MustParse("BTC/USDT"),
		BuyVenue:          "binance",
		BuyPrice:          decimal.NewFromInt(100),
		SellVenue:         "kraken",
		SellPrice:         decimal.NewFromInt(101),
		Volume:            decimal.NewFromInt(100),
		ProfitPct:         decimal.NewFromInt(1),
		RiskLevel:         2,
		Confidence:        80,
		LiquidityScore:    90,
		EstimatedDuration: 5 * time.Second,
		CreatedAt:         now,
		ExpiresAt:         now.Add(30 * time.Second),
		Status:            detection.StatusDiscovered,
	}
}

func TestScore_MonotoneInSlippage(t *testing.T) {
	cfg := testConfig()
	in := Inputs{LiquidityScore: 80, VenueWeight: 1, ChainWeight: 1, Duration: time.Second}

	prev := -1.0
	for slip := 0.0; slip <= 5; slip += 0.05 {
		in.SlippagePct = slip
		score, _ := Score(in, cfg)
		require.GreaterOrEqual(t, score, prev, "score decreased at slippage %.2f%%", slip)
		prev = score
	}
	assert.Equal(t, 100.0, prev, "score should saturate at 5%% slippage")
}

func TestScore_Bounds(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name string
		in   Inputs
	}{
		{"benign", Inputs{LiquidityScore: 100}},
		{"everything wrong", Inputs{
			SlippagePct: 50, NetworkCost: decimal.NewFromInt(1000), Duration: time.Hour,
			CrossVenue: true, CrossChain: true, Leveraged: true, ConcentrationPct: 90,
			AllocationDrift: true, VenueWeight: 3, ChainWeight: 3, VolatilityIndex: 1,
		}},
		{"negative inputs", Inputs{LiquidityScore: -5, SlippagePct: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, factors := Score(tt.in, cfg)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
			assert.NotEmpty(t, factors)
		})
	}
}

func factor(factors []Factor, name string) Factor {
	for _, f := range factors {
		if f.Name == name {
			return f
		}
	}
	return Factor{}
}

func TestScore_MissingEstimatesAreConservative(t *testing.T) {
	cfg := testConfig()
	known := Inputs{
		LiquidityScore: 80, VenueWeight: 1, ChainWeight: 1, OnChain: true,
		Duration: 5 * time.Second, NetworkCost: decimal.NewFromInt(5),
	}
	missing := known
	missing.Duration = 0
	missing.NetworkCost = decimal.Zero

	knownScore, _ := Score(known, cfg)
	missingScore, factors := Score(missing, cfg)
	assert.Greater(t, missingScore, knownScore)
	assert.True(t, factor(factors, "timing").Triggered)
	assert.True(t, factor(factors, "network_cost").Triggered)
	assert.Contains(t, factor(factors, "network_cost").Detail, "unknown")

	// Off-chain routes legitimately pay no network cost.
	offChain := missing
	offChain.OnChain = false
	_, factors = Score(offChain, cfg)
	assert.False(t, factor(factors, "network_cost").Triggered)
	assert.True(t, factor(factors, "timing").Triggered)
}

func TestRecommend(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		score float64
		want  Recommendation
	}{
		{0, RecommendExecute},
		{29.99, RecommendExecute},
		{30, RecommendExecute},
		{30.01, RecommendReduceSize},
		{60, RecommendReduceSize},
		{60.01, RecommendReject},
		{100, RecommendReject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommend(tt.score, cfg), "score %v", tt.score)
	}
	assert.Equal(t, "low", Level(30, cfg))
	assert.Equal(t, "medium", Level(60, cfg))
}

func TestPositionSize_Clamped(t *testing.T) {
	cfg := testConfig()
	state := NewPortfolioState(decimal.NewFromInt(10000), now)

	c := testCandidate()
	c.Confidence = 100
	c.ProfitPct = decimal.NewFromInt(1000)
	c.LiquidityScore = 100
	c.Volume = decimal.NewFromInt(1_000_000)

	size := PositionSize(c, state, cfg)
	fractionCap := state.Balance.Mul(cfg.MaxFractionPerTrade)
	assert.True(t, size.LessThanOrEqual(cfg.MaxPositionSize), size.String())
	assert.True(t, size.Equal(fractionCap), "size %s, want the binding cap %s", size, fractionCap)

	cfg.MaxPositionSize = decimal.NewFromInt(250)
	assert.Equal(t, "250", PositionSize(c, state, cfg).String())
}

func TestPositionSize_NegativeEdge(t *testing.T) {
	cfg := testConfig()
	state := NewPortfolioState(decimal.NewFromInt(10000), now)

	c := testCandidate()
	c.Confidence = 40
	c.ProfitPct = decimal.RequireFromString("0.3")
	assert.True(t, PositionSize(c, state, cfg).IsZero())
}

func TestPositionSize_VolatilityShrinks(t *testing.T) {
	cfg := testConfig()
	calm := NewPortfolioState(decimal.NewFromInt(10000), now)
	wild := calm.Clone()
	wild.VolatilityIndex = 1

	c := testCandidate()
	c.Confidence = 70
	c.LiquidityScore = 50
	assert.True(t, PositionSize(c, wild, cfg).LessThan(PositionSize(c, calm, cfg)))
}

func TestAssess(t *testing.T) {
	cfg := testConfig()
	reg := instrument.DefaultRegistry()
	state := NewPortfolioState(decimal.NewFromInt(10000), now)

	a := Assess(testCandidate(), state, cfg, reg)
	require.Equal(t, RecommendExecute, a.Recommendation, "score %.2f", a.Score)
	assert.True(t, a.PositionSize.IsPositive())

	thin := testCandidate()
	thin.LiquidityScore = 5
	thin.CrossChain = true
	thin.NetworkCost = decimal.NewFromInt(500)
	r := Assess(thin, state, cfg, reg)
	assert.Equal(t, RecommendReject, r.Recommendation, "score %.2f", r.Score)
	assert.True(t, r.PositionSize.IsZero())
}

func TestAssess_MissingEstimatesScoreHigher(t *testing.T) {
	cfg := testConfig()
	reg := instrument.DefaultRegistry()
	state := NewPortfolioState(decimal.NewFromInt(10000), now)

	filled := testCandidate()
	filled.BuyVenue = "uniswap"
	filled.NetworkCost = decimal.NewFromInt(5)

	bare := testCandidate()
	bare.BuyVenue = "uniswap"
	bare.EstimatedDuration = 0

	assert.Greater(t, Assess(bare, state, cfg, reg).Score, Assess(filled, state, cfg, reg).Score)
}

func TestCheckEmergency(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name     string
		mutate   func(*PortfolioState)
		stop     bool
		severity Severity
	}{
		{"healthy", func(*PortfolioState) {}, false, SeverityNone},
		{"daily loss", func(s *PortfolioState) { s.DailyLoss = decimal.NewFromInt(500) }, true, SeverityCritical},
		{"drawdown", func(s *PortfolioState) { s.Balance = decimal.NewFromInt(8000) }, true, SeverityCritical},
		{"too many positions", func(s *PortfolioState) { s.ActivePositions = 6 }, true, SeverityWarning},
		{"volatility only", func(s *PortfolioState) { s.VolatilityIndex = 0.9 }, false, SeverityWarning},
		{"volatility and loss", func(s *PortfolioState) {
			s.VolatilityIndex = 0.9
			s.DailyLoss = decimal.NewFromInt(600)
		}, true, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPortfolioState(decimal.NewFromInt(10000), now)
			tt.mutate(&s)
			e := CheckEmergency(s, cfg)
			assert.Equal(t, tt.stop, e.ShouldStop)
			assert.Equal(t, tt.severity, e.Severity)
			if tt.severity != SeverityNone {
				assert.NotEmpty(t, e.Reasons)
			}
		})
	}
}

func TestUpdate_Apply(t *testing.T) {
	cfg := testConfig()

	slip := 1.5
	next, err := Update{MaxSlippagePct: &slip, VenueWeights: map[string]float64{"kraken": 1.2}}.Apply(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.5, next.MaxSlippagePct)
	assert.Equal(t, 1.2, next.VenueWeights["kraken"])
	assert.Equal(t, 0.5, cfg.MaxSlippagePct, "original configuration was modified")
	assert.Empty(t, cfg.VenueWeights)

	bad := -1
	prior, err := Update{MaxConcurrentTrades: &bad}.Apply(cfg)
	require.True(t, apperror.HasCode(err, apperror.CodeInvalidRiskConfig), "err = %v", err)
	assert.Equal(t, cfg.MaxConcurrentTrades, prior.MaxConcurrentTrades)
}

func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"zero balance", func(c *Configuration) { c.PortfolioBalance = decimal.Zero }},
		{"min above max", func(c *Configuration) { c.MinPositionSize = decimal.NewFromInt(5000) }},
		{"fraction above one", func(c *Configuration) { c.MaxFractionPerTrade = decimal.NewFromInt(2) }},
		{"inverted thresholds", func(c *Configuration) { c.MidRiskThreshold = 10 }},
		{"allocation overflow", func(c *Configuration) {
			c.TargetAllocation = map[instrument.Class]float64{instrument.ClassCrypto: 0.8, instrument.ClassStablecoin: 0.5}
		}},
		{"zero venue weight", func(c *Configuration) { c.VenueWeights = map[string]float64{"binance": 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, testConfig().Validate())
}

func TestRollup(t *testing.T) {
	outcomes := []TradeOutcome{
		{Profit: decimal.NewFromInt(10), Success: true, At: now.Add(-time.Hour)},
		{Profit: decimal.NewFromInt(-4), Success: true, At: now.Add(-2 * time.Hour)},
		{Success: false, At: now.Add(-3 * time.Hour)},
		{Profit: decimal.NewFromInt(99), Success: true, At: now.Add(-48 * time.Hour)},
	}
	p := Rollup(outcomes, 24*time.Hour, now)

	require.Equal(t, 3, p.Trades)
	assert.Equal(t, 2, p.Successful)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, "6", p.TotalProfit.String())
	assert.Equal(t, 0.5, p.WinRate)
	assert.Equal(t, "6", p.DailyPnL.String())
}

func TestDrawdownPct(t *testing.T) {
	s := NewPortfolioState(decimal.NewFromInt(1000), now)
	s.Balance = decimal.NewFromInt(900)
	assert.Equal(t, 10.0, s.DrawdownPct())
}
