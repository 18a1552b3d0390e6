package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/config"
)

// Config tunes the detector. Percentages are in percent units.
type Config struct {
	Policy               domain.ProfitPolicy
	TriangularCycles     [][3]string // asset codes, e.g. {USDT, BTC, ETH}
	MomentumMinChangePct decimal.Decimal
	MomentumMinVolume    decimal.Decimal
	MomentumCapture      decimal.Decimal // fraction of the 24h move expected to continue
	YieldMinSpreadPct    decimal.Decimal
	VenueFeePct          map[string]decimal.Decimal
	DefaultFeePct        decimal.Decimal
	NetworkCost          decimal.Decimal // per on-chain transfer, quote currency
	CandidateTTL         time.Duration
	MaxPrice             decimal.Decimal
	DefaultVolume        decimal.Decimal // base units
}

// ConfigFrom converts the detection config section.
func ConfigFrom(c config.DetectionConfig) (Config, error) {
	cfg := Config{
		Policy: domain.ProfitPolicy{
			MinPct:      decimal.NewFromFloat(c.MinProfitPct),
			MaxPct:      decimal.NewFromFloat(c.MaxProfitPct),
			PerStrategy: make(map[domain.Strategy]decimal.Decimal, len(c.StrategyMinProfitPct)),
		},
		MomentumMinChangePct: decimal.NewFromFloat(c.MomentumMinChangePct),
		MomentumMinVolume:    decimal.NewFromFloat(c.MomentumMinVolume),
		MomentumCapture:      decimal.NewFromFloat(c.MomentumCapture),
		YieldMinSpreadPct:    decimal.NewFromFloat(c.YieldMinSpreadPct),
		VenueFeePct:          make(map[string]decimal.Decimal, len(c.VenueFeePct)),
		DefaultFeePct:        decimal.NewFromFloat(0.1),
		NetworkCost:          decimal.NewFromFloat(c.NetworkCost),
		CandidateTTL:         c.CandidateTTL,
		MaxPrice:             decimal.NewFromFloat(c.MaxPrice),
		DefaultVolume:        decimal.NewFromFloat(c.DefaultVolume),
	}

	for name, pct := range c.StrategyMinProfitPct {
		s, err := domain.ParseStrategy(name)
		if err != nil {
			return Config{}, err
		}
		cfg.Policy.PerStrategy[s] = decimal.NewFromFloat(pct)
	}
	for venue, pct := range c.VenueFeePct {
		cfg.VenueFeePct[strings.ToLower(venue)] = decimal.NewFromFloat(pct)
	}
	for _, raw := range c.TriangularCycles {
		parts := strings.Split(strings.ToUpper(raw), "-")
		if len(parts) != 3 || parts[0] == parts[1] || parts[1] == parts[2] || parts[0] == parts[2] {
			return Config{}, fmt.Errorf("triangular cycle %q must name three distinct assets", raw)
		}
		cfg.TriangularCycles = append(cfg.TriangularCycles, [3]string{parts[0], parts[1], parts[2]})
	}
	if !cfg.DefaultVolume.IsPositive() {
		cfg.DefaultVolume = decimal.NewFromInt(1)
	}
	return cfg, nil
}

// FeePct returns the taker fee for venue.
func (c Config) FeePct(venue string) decimal.Decimal {
	if v, ok := c.VenueFeePct[venue]; ok {
		return v
	}
	return c.DefaultFeePct
}
