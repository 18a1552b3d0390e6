package app

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func riskSection() config.RiskConfig {
	return config.RiskConfig{
		PortfolioBalance:     10000,
		MaxDailyLoss:         500,
		MaxPositionSize:      2000,
		MinPositionSize:      10,
		MaxConcurrentTrades:  5,
		MaxFractionPerTrade:  0.1,
		MaxSlippagePct:       0.5,
		MinLiquidityScore:    30,
		MaxNetworkCost:       50,
		MaxExecutionTime:     time.Minute,
		EmergencyDrawdownPct: 15,
		MaxConcentrationPct:  40,
		VolatilityMultiplier: 0.5,
		HighVolatilityIndex:  0.8,
		LowRiskThreshold:     30,
		MidRiskThreshold:     60,
		KellyFraction:        0.5,
		MaxKellyFraction:     0.25,
		TargetAllocation:     map[string]float64{"Crypto": 0.7, "stablecoin": 0.3},
		VenueWeights:         map[string]float64{"Binance": 1},
		ChainWeights:         map[string]float64{"ethereum": 1.2},
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	stops   []domain.Emergency
	resumes int
}

func (n *recordingNotifier) NotifyEmergency(_ context.Context, e domain.Emergency) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stops = append(n.stops, e)
	return nil
}

func (n *recordingNotifier) NotifyResumed(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resumes++
	return nil
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	cfg, err := ConfigFrom(riskSection())
	require.NoError(t, err)
	store, err := NewConfigStore(cfg)
	require.NoError(t, err)
	tracker := NewTracker(cfg.PortfolioBalance, func() time.Time { return testNow })
	e, err := NewEngine(store, tracker, instrument.DefaultRegistry(),
		logger.New(io.Discard, logger.LevelError, "test", nil), opts...)
	require.NoError(t, err)
	return e
}

func TestConfigFrom(t *testing.T) {
	cfg, err := ConfigFrom(riskSection())
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.TargetAllocation[instrument.ClassCrypto])
	assert.Equal(t, 1.0, cfg.VenueWeights["binance"])
	assert.Equal(t, 1.2, cfg.ChainWeights[instrument.Ethereum])
	assert.True(t, cfg.MaxFractionPerTrade.Equal(decimal.RequireFromString("0.1")))

	bad := riskSection()
	bad.KellyFraction = 0
	_, err = ConfigFrom(bad)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRiskConfig))
}

func TestConfigStore_KeepsPriorOnError(t *testing.T) {
	cfg, err := ConfigFrom(riskSection())
	require.NoError(t, err)
	store, err := NewConfigStore(cfg)
	require.NoError(t, err)

	negative := decimal.NewFromInt(-1)
	got, err := store.Update(domain.Update{MaxDailyLoss: &negative})
	require.Error(t, err)
	assert.True(t, got.MaxDailyLoss.Equal(decimal.NewFromInt(500)))
	assert.True(t, store.Get().MaxDailyLoss.Equal(decimal.NewFromInt(500)))

	slip := 0.8
	got, err = store.Update(domain.Update{MaxSlippagePct: &slip})
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.MaxSlippagePct)
	assert.Equal(t, 0.8, store.Get().MaxSlippagePct)
}

func TestConfigStore_ConcurrentUpdates(t *testing.T) {
	cfg, err := ConfigFrom(riskSection())
	require.NoError(t, err)
	store, err := NewConfigStore(cfg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w := 1 + float64(i)/100
			_, _ = store.Update(domain.Update{VenueWeights: map[string]float64{"kraken": w}})
		}()
		go func() {
			defer wg.Done()
			_ = store.Get().Validate()
		}()
	}
	wg.Wait()
	assert.NoError(t, store.Get().Validate())
}

func TestTracker_OpenClose(t *testing.T) {
	tr := NewTracker(decimal.NewFromInt(1000), func() time.Time { return testNow })
	p := domain.Position{CandidateID: "a", Asset: "BTC", Venues: []string{"binance", "kraken"}, Size: decimal.NewFromInt(100)}

	assert.True(t, tr.Open(p))
	assert.False(t, tr.Open(p), "duplicate open")

	s := tr.Snapshot()
	assert.Equal(t, 1, s.ActivePositions)
	assert.True(t, s.InstrumentExposure["BTC"].Equal(decimal.NewFromInt(100)))
	assert.True(t, s.VenueExposure["kraken"].Equal(decimal.NewFromInt(100)))

	assert.True(t, tr.Close("a", decimal.NewFromInt(-30)))
	assert.False(t, tr.Close("a", decimal.NewFromInt(-30)), "duplicate close")

	s = tr.Snapshot()
	assert.Equal(t, 0, s.ActivePositions)
	assert.Empty(t, s.InstrumentExposure)
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(970)))
	assert.True(t, s.DailyLoss.Equal(decimal.NewFromInt(30)))
	assert.True(t, s.PeakBalance.Equal(decimal.NewFromInt(1000)))
}

func TestTracker_ConcurrentWritersLoseNothing(t *testing.T) {
	tr := NewTracker(decimal.NewFromInt(1000), nil)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "c-" + strconv.Itoa(i)
			tr.Open(domain.Position{CandidateID: id, Asset: "ETH", Size: decimal.NewFromInt(1)})
			tr.Close(id, decimal.NewFromInt(1))
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.Equal(t, 0, s.ActivePositions)
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(1100)), "balance = %s", s.Balance)
}

func TestTracker_SnapshotIsolated(t *testing.T) {
	tr := NewTracker(decimal.NewFromInt(1000), nil)
	tr.Open(domain.Position{CandidateID: "a", Asset: "BTC", Size: decimal.NewFromInt(5)})

	s := tr.Snapshot()
	s.InstrumentExposure["BTC"] = decimal.NewFromInt(999)

	assert.True(t, tr.Snapshot().InstrumentExposure["BTC"].Equal(decimal.NewFromInt(5)))
}

func TestEngine_EmergencyGate(t *testing.T) {
	n := &recordingNotifier{}
	e := newEngine(t, WithNotifier(n))
	assert.True(t, e.Tracker().ExecutionEnabled())

	e.ApplyPerformance(context.Background(), domain.Performance{DailyPnL: decimal.NewFromInt(-600)})
	assert.False(t, e.Tracker().ExecutionEnabled())
	assert.Equal(t, "critical", e.Level())
	require.Len(t, n.stops, 1)
	assert.Equal(t, domain.SeverityCritical, n.stops[0].Severity)

	// unchanged verdict does not re-notify
	e.CheckEmergency(context.Background())
	assert.Len(t, n.stops, 1)

	e.ApplyPerformance(context.Background(), domain.Performance{DailyPnL: decimal.NewFromInt(20)})
	assert.True(t, e.Tracker().ExecutionEnabled())
	assert.Equal(t, 1, n.resumes)
}

func TestEngine_PauseIsSeparateFromEmergency(t *testing.T) {
	n := &recordingNotifier{}
	e := newEngine(t, WithNotifier(n))

	e.SetPaused(context.Background(), true)
	s := e.Tracker().Snapshot()
	assert.True(t, s.Paused)
	assert.True(t, s.Halted())
	assert.True(t, e.Tracker().ExecutionEnabled(), "pause must not trip the emergency gate")

	// an emergency check that clears does not lift the pause
	e.CheckEmergency(context.Background())
	assert.True(t, e.Tracker().Snapshot().Paused)
	assert.Empty(t, n.stops)
	assert.Zero(t, n.resumes)

	e.SetPaused(context.Background(), false)
	assert.False(t, e.Tracker().Snapshot().Halted())
}

func TestEngine_VolatilityWarnsOnly(t *testing.T) {
	e := newEngine(t)
	e.ObserveMarket(0.95, 0.5)

	em := e.CheckEmergency(context.Background())
	assert.False(t, em.ShouldStop)
	assert.Equal(t, domain.SeverityWarning, em.Severity)
	assert.True(t, e.Tracker().ExecutionEnabled())
}

func TestEngine_UpdateConfig(t *testing.T) {
	e := newEngine(t)

	loss := decimal.NewFromInt(5)
	e.Tracker().ApplyPerformance(domain.Performance{DailyPnL: decimal.NewFromInt(-10)})
	_, err := e.UpdateConfig(context.Background(), domain.Update{MaxDailyLoss: &loss})
	require.NoError(t, err)
	assert.False(t, e.Tracker().ExecutionEnabled(), "tighter limit should trip the gate")

	zero := 0
	cfg, err := e.UpdateConfig(context.Background(), domain.Update{MaxConcurrentTrades: &zero})
	require.Error(t, err)
	assert.Equal(t, 5, cfg.MaxConcurrentTrades)
}

func TestEngine_UpdateConfigRebasesBalance(t *testing.T) {
	e := newEngine(t)

	balance := decimal.NewFromInt(2000)
	cfg, err := e.UpdateConfig(context.Background(), domain.Update{PortfolioBalance: &balance})
	require.NoError(t, err)
	assert.Equal(t, "2000", cfg.PortfolioBalance.String())

	s := e.Portfolio()
	assert.Equal(t, "2000", s.Balance.String())
	assert.Equal(t, "2000", s.PeakBalance.String())
	assert.Zero(t, s.DrawdownPct())
	assert.True(t, e.Tracker().ExecutionEnabled(), "a smaller base is not a drawdown")

	// Sizing follows the new balance: 10% per trade of 2000.
	c := detection.Candidate{
		ID:                "sized",
		Strategy:          detection.StrategyDirect,
		Symbol:            instrument.MustParse("BTC/USDT"),
		BuyVenue:          "binance",
		SellVenue:         "kraken",
		BuyPrice:          decimal.NewFromInt(100),
		SellPrice:         decimal.NewFromInt(110),
		Volume:            decimal.NewFromInt(1000),
		ProfitPct:         decimal.NewFromInt(10),
		Confidence:        100,
		LiquidityScore:    100,
		EstimatedDuration: 5 * time.Second,
	}
	a := e.Assess(context.Background(), &c)
	assert.True(t, a.BaseSize.LessThanOrEqual(decimal.NewFromInt(200)), a.BaseSize.String())

	// Other updates leave the tracked balance alone.
	slip := 0.7
	_, err = e.UpdateConfig(context.Background(), domain.Update{MaxSlippagePct: &slip})
	require.NoError(t, err)
	assert.Equal(t, "2000", e.Portfolio().Balance.String())
}

func TestEngine_AssessBatch(t *testing.T) {
	e := newEngine(t)
	cs := []detection.Candidate{
		{
			ID:         "a", Strategy: detection.StrategyDirect, Symbol: instrument.MustParse("BTC/USDT"),
			BuyVenue:   "binance", SellVenue: "kraken",
			BuyPrice:   decimal.NewFromInt(100), SellPrice: decimal.NewFromInt(101),
			Volume:     decimal.NewFromInt(50), ProfitPct: decimal.NewFromInt(1),
			Confidence: 80, LiquidityScore: 90, EstimatedDuration: 5 * time.Second,
		},
		{
			ID:         "b", Strategy: detection.StrategyDirect, Symbol: instrument.MustParse("ETH/USDT"),
			BuyVenue:   "binance", SellVenue: "kraken",
			BuyPrice:   decimal.NewFromInt(100), SellPrice: decimal.NewFromInt(101),
			Volume:     decimal.NewFromInt(50), ProfitPct: decimal.NewFromInt(1),
			Confidence: 80, LiquidityScore: 2,
		},
	}

	out, state := e.AssessBatch(context.Background(), cs)
	require.Len(t, out, 2)
	assert.Equal(t, domain.RecommendExecute, out[0].Recommendation)
	assert.Equal(t, domain.RecommendReject, out[1].Recommendation)
	assert.True(t, state.ExecutionEnabled)
	assert.InDelta(t, (out[0].Score+out[1].Score)/2, e.Tracker().Snapshot().AggregateRisk, 1e-9)
}
