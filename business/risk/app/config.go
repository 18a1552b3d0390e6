package app

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// ConfigFrom converts and validates the risk config section.
func ConfigFrom(c config.RiskConfig) (domain.Configuration, error) {
	cfg := domain.Configuration{
		PortfolioBalance:     decimal.NewFromFloat(c.PortfolioBalance),
		MaxDailyLoss:         decimal.NewFromFloat(c.MaxDailyLoss),
		MaxPositionSize:      decimal.NewFromFloat(c.MaxPositionSize),
		MinPositionSize:      decimal.NewFromFloat(c.MinPositionSize),
		MaxConcurrentTrades:  c.MaxConcurrentTrades,
		MaxFractionPerTrade:  decimal.NewFromFloat(c.MaxFractionPerTrade),
		MaxSlippagePct:       c.MaxSlippagePct,
		MinLiquidityScore:    c.MinLiquidityScore,
		MaxNetworkCost:       decimal.NewFromFloat(c.MaxNetworkCost),
		MaxExecutionTime:     c.MaxExecutionTime,
		EmergencyDrawdownPct: c.EmergencyDrawdownPct,
		MaxConcentrationPct:  c.MaxConcentrationPct,
		VolatilityMultiplier: c.VolatilityMultiplier,
		HighVolatilityIndex:  c.HighVolatilityIndex,
		LowRiskThreshold:     c.LowRiskThreshold,
		MidRiskThreshold:     c.MidRiskThreshold,
		KellyFraction:        c.KellyFraction,
		MaxKellyFraction:     c.MaxKellyFraction,
		TargetAllocation:     make(map[instrument.Class]float64, len(c.TargetAllocation)),
		VenueWeights:         make(map[string]float64, len(c.VenueWeights)),
		ChainWeights:         make(map[instrument.Chain]float64, len(c.ChainWeights)),
		Penalties:            domain.DefaultPenalties(),
	}

	for class, w := range c.TargetAllocation {
		cfg.TargetAllocation[instrument.Class(strings.ToLower(class))] = w
	}
	for venue, w := range c.VenueWeights {
		cfg.VenueWeights[strings.ToLower(venue)] = w
	}
	for chain, w := range c.ChainWeights {
		cfg.ChainWeights[instrument.Chain(strings.ToLower(chain))] = w
	}

	if err := cfg.Validate(); err != nil {
		return domain.Configuration{}, err
	}
	return cfg, nil
}
