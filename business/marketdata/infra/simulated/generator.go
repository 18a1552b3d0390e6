// Package simulated generates synthetic multi-venue tickers for demos and
// tests. It is a test-data source, not a detector.
package simulated

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// usdPrices seeds mid prices; cross pairs are derived so triangular cycles
// start roughly consistent.
var usdPrices = map[string]float64{
	"BTC":  65000,
	"WBTC": 65000,
	"ETH":  3200,
	"SOL":  150,
	"BNB":  580,
	"USDT": 1,
	"USDC": 1,
	"USD":  1,
}

// GeneratorConfig shapes the random walk. Percentages are in percent units.
type GeneratorConfig struct {
	Venues        []domain.Venue
	Symbols       []instrument.Symbol
	Seed          uint64
	VolatilityPct float64 // per-step stddev of the shared mid
	VenueSkewPct  float64 // per-venue stddev around the shared mid
	SpreadPct     float64
	BaseVolume    float64 // quote currency
}

// DefaultGeneratorConfig returns a walk that produces an occasional
// cross-venue spread above typical fee levels.
func DefaultGeneratorConfig(venues []domain.Venue, symbols []instrument.Symbol, seed uint64) GeneratorConfig {
	return GeneratorConfig{
		Venues:        venues,
		Symbols:       symbols,
		Seed:          seed,
		VolatilityPct: 0.05,
		VenueSkewPct:  0.3,
		SpreadPct:     0.02,
		BaseVolume:    2_000_000,
	}
}

// Generator is a seeded random walk. The same seed and call sequence yield
// the same tickers. Not safe for concurrent use.
type Generator struct {
	cfg  GeneratorConfig
	rng  *rand.Rand
	mid  map[instrument.Symbol]float64
	open map[instrument.Symbol]float64
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		mid:  make(map[instrument.Symbol]float64, len(cfg.Symbols)),
		open: make(map[instrument.Symbol]float64, len(cfg.Symbols)),
	}
	for _, s := range cfg.Symbols {
		p := startPrice(s)
		g.mid[s] = p
		g.open[s] = p
	}
	return g
}

func startPrice(s instrument.Symbol) float64 {
	base, okB := usdPrices[s.Base]
	quote, okQ := usdPrices[s.Quote]
	if !okB || !okQ || quote == 0 {
		return 100
	}
	return base / quote
}

// Next advances the walk one step and returns one ticker per venue and
// symbol, stamped with now.
func (g *Generator) Next(now time.Time) []domain.Ticker {
	out := make([]domain.Ticker, 0, len(g.cfg.Venues)*len(g.cfg.Symbols))

	for _, s := range g.cfg.Symbols {
		mid := g.mid[s] * (1 + g.rng.NormFloat64()*g.cfg.VolatilityPct/100)
		g.mid[s] = mid
		change := (mid/g.open[s] - 1) * 100

		for _, v := range g.cfg.Venues {
			venueMid := mid * (1 + g.rng.NormFloat64()*g.cfg.VenueSkewPct/100)
			half := venueMid * g.cfg.SpreadPct / 200
			volume := g.cfg.BaseVolume * (0.5 + g.rng.Float64())

			out = append(out, domain.Ticker{
				Venue:     v,
				Symbol:    s,
				Bid:       price(venueMid - half),
				Ask:       price(venueMid + half),
				Last:      price(venueMid),
				Volume24h: decimal.NewFromFloat(volume).Round(2),
				ChangePct: decimal.NewFromFloat(change).Round(4),
				Timestamp: now,
			})
		}
	}
	return out
}

// price rounds to eight significant decimals below 1 and two above 1000.
func price(f float64) decimal.Decimal {
	places := int32(8)
	if f >= 1000 {
		places = 2
	} else if f >= 1 {
		places = 4
	}
	return decimal.NewFromFloat(math.Max(f, 1e-8)).Round(places)
}
