// Package domain contains the risk engine's pure policy, scoring and sizing.
package domain

import (
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// Penalties are the score contributions of each triggered factor.
type Penalties struct {
	LowLiquidity    float64 `json:"low_liquidity"`    // below MinLiquidityScore
	SlippagePerPct  float64 `json:"slippage_per_pct"` // per percentage point above MaxSlippagePct
	NetworkCost     float64 `json:"network_cost"`     // above MaxNetworkCost
	SlowExecution   float64 `json:"slow_execution"`   // above MaxExecutionTime
	CrossVenue      float64 `json:"cross_venue"`
	CrossChain      float64 `json:"cross_chain"`
	Leveraged       float64 `json:"leveraged"`
	Concentration   float64 `json:"concentration"`   // instrument exposure above MaxConcentrationPct
	AllocationDrift float64 `json:"allocation_drift"` // asset class above its target allocation
}

func DefaultPenalties() Penalties {
	return Penalties{
		LowLiquidity:    30,
		SlippagePerPct:  20,
		NetworkCost:     15,
		SlowExecution:   10,
		CrossVenue:      5,
		CrossChain:      15,
		Leveraged:       10,
		Concentration:   20,
		AllocationDrift: 5,
	}
}

// Configuration is the process-wide risk policy. Money is quote currency;
// percentages are percent units; fractions are 0..1.
type Configuration struct {
	PortfolioBalance     decimal.Decimal              `json:"portfolio_balance"`
	MaxDailyLoss         decimal.Decimal              `json:"max_daily_loss"`
	MaxPositionSize      decimal.Decimal              `json:"max_position_size"`
	MinPositionSize      decimal.Decimal              `json:"min_position_size"`
	MaxConcurrentTrades  int                          `json:"max_concurrent_trades"`
	MaxFractionPerTrade  decimal.Decimal              `json:"max_fraction_per_trade"`
	MaxSlippagePct       float64                      `json:"max_slippage_pct"`
	MinLiquidityScore    float64                      `json:"min_liquidity_score"`
	MaxNetworkCost       decimal.Decimal              `json:"max_network_cost"`
	MaxExecutionTime     time.Duration                `json:"max_execution_time"`
	EmergencyDrawdownPct float64                      `json:"emergency_drawdown_pct"`
	MaxConcentrationPct  float64                      `json:"max_concentration_pct"`
	VolatilityMultiplier float64                      `json:"volatility_multiplier"`
	HighVolatilityIndex  float64                      `json:"high_volatility_index"`
	LowRiskThreshold     float64                      `json:"low_risk_threshold"`
	MidRiskThreshold     float64                      `json:"mid_risk_threshold"`
	KellyFraction        float64                      `json:"kelly_fraction"`
	MaxKellyFraction     float64                      `json:"max_kelly_fraction"`
	TargetAllocation     map[instrument.Class]float64 `json:"target_allocation"`
	VenueWeights         map[string]float64           `json:"venue_weights"`
	ChainWeights         map[instrument.Chain]float64 `json:"chain_weights"`
	Penalties            Penalties                    `json:"penalties"`
}

// Clone deep-copies the weight maps.
func (c Configuration) Clone() Configuration {
	c.TargetAllocation = maps.Clone(c.TargetAllocation)
	c.VenueWeights = maps.Clone(c.VenueWeights)
	c.ChainWeights = maps.Clone(c.ChainWeights)
	return c
}

// Validate rejects limits that would disable or invert a safeguard.
func (c Configuration) Validate() error {
	switch {
	case !c.PortfolioBalance.IsPositive():
		return invalidConfig("portfolio balance must be positive")
	case !c.MaxDailyLoss.IsPositive():
		return invalidConfig("max daily loss must be positive")
	case !c.MaxPositionSize.IsPositive():
		return invalidConfig("max position size must be positive")
	case c.MinPositionSize.IsNegative() || c.MinPositionSize.GreaterThan(c.MaxPositionSize):
		return invalidConfig("min position size must be within [0, max position size]")
	case c.MaxConcurrentTrades < 1:
		return invalidConfig("max concurrent trades must be at least 1")
	case !c.MaxFractionPerTrade.IsPositive() || c.MaxFractionPerTrade.GreaterThan(decimal.NewFromInt(1)):
		return invalidConfig("max fraction per trade must be in (0, 1]")
	case c.MaxSlippagePct <= 0:
		return invalidConfig("max slippage must be positive")
	case c.MinLiquidityScore < 0 || c.MinLiquidityScore > 100:
		return invalidConfig("min liquidity score must be in [0, 100]")
	case c.MaxNetworkCost.IsNegative():
		return invalidConfig("max network cost cannot be negative")
	case c.MaxExecutionTime <= 0:
		return invalidConfig("max execution time must be positive")
	case c.EmergencyDrawdownPct <= 0 || c.EmergencyDrawdownPct > 100:
		return invalidConfig("emergency drawdown must be in (0, 100]")
	case c.MaxConcentrationPct <= 0 || c.MaxConcentrationPct > 100:
		return invalidConfig("max concentration must be in (0, 100]")
	case c.VolatilityMultiplier < 0:
		return invalidConfig("volatility multiplier cannot be negative")
	case c.HighVolatilityIndex <= 0:
		return invalidConfig("high volatility index must be positive")
	case c.LowRiskThreshold <= 0 || c.MidRiskThreshold <= c.LowRiskThreshold:
		return invalidConfig("risk thresholds must satisfy 0 < low < mid")
	case c.KellyFraction <= 0 || c.KellyFraction > 1:
		return invalidConfig("kelly fraction must be in (0, 1]")
	case c.MaxKellyFraction <= 0 || c.MaxKellyFraction > 1:
		return invalidConfig("max kelly fraction must be in (0, 1]")
	}

	total := 0.0
	for class, w := range c.TargetAllocation {
		if w < 0 || w > 1 {
			return invalidConfig(fmt.Sprintf("target allocation for %s must be in [0, 1]", class))
		}
		total += w
	}
	if total > 1.0001 {
		return invalidConfig("target allocations sum above 1")
	}
	for venue, w := range c.VenueWeights {
		if w <= 0 {
			return invalidConfig(fmt.Sprintf("venue weight for %s must be positive", venue))
		}
	}
	for chain, w := range c.ChainWeights {
		if w <= 0 {
			return invalidConfig(fmt.Sprintf("chain weight for %s must be positive", chain))
		}
	}
	return nil
}

func invalidConfig(msg string) error {
	return apperror.New(apperror.CodeInvalidRiskConfig, apperror.WithContext(msg))
}

// Update is a partial configuration; nil fields are left unchanged. Map
// fields replace entries key by key.
type Update struct {
	PortfolioBalance     *decimal.Decimal             `json:"portfolio_balance,omitempty"`
	MaxDailyLoss         *decimal.Decimal             `json:"max_daily_loss,omitempty"`
	MaxPositionSize      *decimal.Decimal             `json:"max_position_size,omitempty"`
	MinPositionSize      *decimal.Decimal             `json:"min_position_size,omitempty"`
	MaxConcurrentTrades  *int                         `json:"max_concurrent_trades,omitempty"`
	MaxFractionPerTrade  *decimal.Decimal             `json:"max_fraction_per_trade,omitempty"`
	MaxSlippagePct       *float64                     `json:"max_slippage_pct,omitempty"`
	MinLiquidityScore    *float64                     `json:"min_liquidity_score,omitempty"`
	MaxNetworkCost       *decimal.Decimal             `json:"max_network_cost,omitempty"`
	MaxExecutionTime     *time.Duration               `json:"max_execution_time,omitempty"`
	EmergencyDrawdownPct *float64                     `json:"emergency_drawdown_pct,omitempty"`
	MaxConcentrationPct  *float64                     `json:"max_concentration_pct,omitempty"`
	VolatilityMultiplier *float64                     `json:"volatility_multiplier,omitempty"`
	HighVolatilityIndex  *float64                     `json:"high_volatility_index,omitempty"`
	LowRiskThreshold     *float64                     `json:"low_risk_threshold,omitempty"`
	MidRiskThreshold     *float64                     `json:"mid_risk_threshold,omitempty"`
	KellyFraction        *float64                     `json:"kelly_fraction,omitempty"`
	MaxKellyFraction     *float64                     `json:"max_kelly_fraction,omitempty"`
	TargetAllocation     map[instrument.Class]float64 `json:"target_allocation,omitempty"`
	VenueWeights         map[string]float64           `json:"venue_weights,omitempty"`
	ChainWeights         map[instrument.Chain]float64 `json:"chain_weights,omitempty"`
}

// Apply returns a validated copy of c with u applied. c is never modified.
func (u Update) Apply(c Configuration) (Configuration, error) {
	next := c.Clone()

	setDec(&next.PortfolioBalance, u.PortfolioBalance)
	setDec(&next.MaxDailyLoss, u.MaxDailyLoss)
	setDec(&next.MaxPositionSize, u.MaxPositionSize)
	setDec(&next.MinPositionSize, u.MinPositionSize)
	setDec(&next.MaxFractionPerTrade, u.MaxFractionPerTrade)
	setDec(&next.MaxNetworkCost, u.MaxNetworkCost)
	set(&next.MaxConcurrentTrades, u.MaxConcurrentTrades)
	set(&next.MaxSlippagePct, u.MaxSlippagePct)
	set(&next.MinLiquidityScore, u.MinLiquidityScore)
	set(&next.MaxExecutionTime, u.MaxExecutionTime)
	set(&next.EmergencyDrawdownPct, u.EmergencyDrawdownPct)
	set(&next.MaxConcentrationPct, u.MaxConcentrationPct)
	set(&next.VolatilityMultiplier, u.VolatilityMultiplier)
	set(&next.HighVolatilityIndex, u.HighVolatilityIndex)
	set(&next.LowRiskThreshold, u.LowRiskThreshold)
	set(&next.MidRiskThreshold, u.MidRiskThreshold)
	set(&next.KellyFraction, u.KellyFraction)
	set(&next.MaxKellyFraction, u.MaxKellyFraction)

	next.TargetAllocation = merge(next.TargetAllocation, u.TargetAllocation)
	next.VenueWeights = merge(next.VenueWeights, u.VenueWeights)
	next.ChainWeights = merge(next.ChainWeights, u.ChainWeights)

	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.PortfolioBalance == nil && u.MaxDailyLoss == nil && u.MaxPositionSize == nil &&
		u.MinPositionSize == nil && u.MaxConcurrentTrades == nil && u.MaxFractionPerTrade == nil &&
		u.MaxSlippagePct == nil && u.MinLiquidityScore == nil && u.MaxNetworkCost == nil &&
		u.MaxExecutionTime == nil && u.EmergencyDrawdownPct == nil && u.MaxConcentrationPct == nil &&
		u.VolatilityMultiplier == nil && u.HighVolatilityIndex == nil && u.LowRiskThreshold == nil &&
		u.MidRiskThreshold == nil && u.KellyFraction == nil && u.MaxKellyFraction == nil &&
		len(u.TargetAllocation) == 0 && len(u.VenueWeights) == 0 && len(u.ChainWeights) == 0
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDec(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func merge[K comparable](dst, src map[K]float64) map[K]float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[K]float64, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
