package simulated

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

var (
	venues  = []domain.Venue{"binance", "coinbase", "kraken"}
	symbols = []instrument.Symbol{
		instrument.MustParse("BTC/USDT"),
		instrument.MustParse("ETH/USDT"),
		instrument.MustParse("ETH/BTC"),
	}
	now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(DefaultGeneratorConfig(venues, symbols, 42))
	b := NewGenerator(DefaultGeneratorConfig(venues, symbols, 42))
	c := NewGenerator(DefaultGeneratorConfig(venues, symbols, 43))

	for range 5 {
		ta, tb, tc := a.Next(now), b.Next(now), c.Next(now)
		assert.Equal(t, ta, tb)
		assert.NotEqual(t, ta, tc)
	}
}

func TestGenerator_ProducesValidTickers(t *testing.T) {
	g := NewGenerator(DefaultGeneratorConfig(venues, symbols, 1))
	bound := decimal.NewFromInt(10_000_000)

	for step := range 50 {
		ticks := g.Next(now.Add(time.Duration(step) * time.Second))
		require.Len(t, ticks, len(venues)*len(symbols))
		for _, tk := range ticks {
			require.NoError(t, tk.Validate(bound), "%s", tk.Key())
		}
	}
}

func TestGenerator_CrossPairsStartConsistent(t *testing.T) {
	cfg := DefaultGeneratorConfig([]domain.Venue{"binance"}, symbols, 1)
	cfg.VolatilityPct = 0
	cfg.VenueSkewPct = 0

	ticks := NewGenerator(cfg).Next(now)
	mids := map[string]float64{}
	for _, tk := range ticks {
		mids[tk.Symbol.String()], _ = tk.Mid().Float64()
	}
	assert.InEpsilon(t, mids["ETH/USDT"]/mids["BTC/USDT"], mids["ETH/BTC"], 1e-4)
}

func TestFeed_StartEmitsAndCloses(t *testing.T) {
	f := NewFeed(DefaultGeneratorConfig(venues, symbols, 7), 10*time.Millisecond,
		logger.New(io.Discard, logger.LevelError, "test", nil))

	var mu sync.Mutex
	count := 0
	sink := func(context.Context, domain.Ticker) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	require.NoError(t, f.Start(context.Background(), sink))
	require.NoError(t, f.Start(context.Background(), sink))
	assert.True(t, f.Connected())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 3*len(venues)*len(symbols)
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.Close())
	assert.False(t, f.Connected())
}
