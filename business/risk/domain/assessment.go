package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

// Recommendation is the risk engine's verdict on a candidate.
type Recommendation string

const (
	RecommendExecute    Recommendation = "execute"
	RecommendReduceSize Recommendation = "reduce_size"
	RecommendReject     Recommendation = "reject"
)

// Factor is one named contribution to the risk score.
type Factor struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Triggered bool    `json:"triggered"`
	Detail    string  `json:"detail,omitempty"`
}

// Assessment is the scored, sized verdict for one candidate.
type Assessment struct {
	CandidateID    string          `json:"candidate_id"`
	Score          float64         `json:"score"` // 0..100, higher is riskier
	Factors        []Factor        `json:"factors"`
	Recommendation Recommendation  `json:"recommendation"`
	SlippagePct    float64         `json:"slippage_pct"`
	BaseSize       decimal.Decimal `json:"base_size"`
	PositionSize   decimal.Decimal `json:"position_size"` // quote currency, 0 on reject
}

// Inputs are the observable quantities the score is computed from.
type Inputs struct {
	LiquidityScore   float64
	SlippagePct      float64
	NetworkCost      decimal.Decimal
	Duration         time.Duration
	CrossVenue       bool
	CrossChain       bool
	OnChain          bool // at least one leg settles on a chain
	Leveraged        bool
	ConcentrationPct float64
	AllocationDrift  bool
	VenueWeight      float64
	ChainWeight      float64
	VolatilityIndex  float64
}

// Score computes the weighted factor sum, scaled by venue and chain weights
// and by volatility, clamped to [0, 100]. It is non-decreasing in every
// risk input, slippage included. A missing duration, or a missing network
// cost on a route that touches a chain, scores as the worst case.
func Score(in Inputs, cfg Configuration) (float64, []Factor) {
	p := cfg.Penalties
	factors := make([]Factor, 0, 8)
	add := func(name string, base, penalty float64, triggered bool, detail string) {
		score := base
		if triggered {
			score += penalty
		}
		factors = append(factors, Factor{Name: name, Score: score, Triggered: triggered, Detail: detail})
	}

	liq := clamp(in.LiquidityScore, 0, 100)
	add("liquidity", (100-liq)*0.1, p.LowLiquidity, liq < cfg.MinLiquidityScore,
		fmt.Sprintf("score %.1f, min %.1f", liq, cfg.MinLiquidityScore))

	slip := clamp(in.SlippagePct, 0, 100)
	slipPenalty := 0.0
	if slip > cfg.MaxSlippagePct {
		slipPenalty = (slip - cfg.MaxSlippagePct) * p.SlippagePerPct
	}
	add("slippage", slip*10, slipPenalty, slip > cfg.MaxSlippagePct,
		fmt.Sprintf("%.4f%%, max %.4f%%", slip, cfg.MaxSlippagePct))

	costUnknown := (in.OnChain || in.CrossChain) && !in.NetworkCost.IsPositive()
	costBase := 0.0
	switch {
	case costUnknown:
		costBase = 5
	case cfg.MaxNetworkCost.IsPositive():
		costBase = math.Min(in.NetworkCost.Div(cfg.MaxNetworkCost).InexactFloat64(), 1) * 5
	}
	costDetail := fmt.Sprintf("%s, max %s", in.NetworkCost.StringFixed(2), cfg.MaxNetworkCost.StringFixed(2))
	if costUnknown {
		costDetail = "unknown, max " + cfg.MaxNetworkCost.StringFixed(2)
	}
	add("network_cost", costBase, p.NetworkCost, costUnknown || in.NetworkCost.GreaterThan(cfg.MaxNetworkCost), costDetail)

	durationUnknown := in.Duration <= 0
	timing := 5.0
	timingDetail := fmt.Sprintf("unknown, max %s", cfg.MaxExecutionTime)
	if !durationUnknown {
		timing = math.Min(float64(in.Duration)/float64(cfg.MaxExecutionTime), 1) * 5
		timingDetail = fmt.Sprintf("%s, max %s", in.Duration, cfg.MaxExecutionTime)
	}
	add("timing", timing, p.SlowExecution, durationUnknown || in.Duration > cfg.MaxExecutionTime, timingDetail)

	class := 0.0
	if in.CrossVenue {
		class += p.CrossVenue
	}
	if in.CrossChain {
		class += p.CrossChain
	}
	if in.Leveraged {
		class += p.Leveraged
	}
	add("strategy_class", class, 0, false,
		fmt.Sprintf("cross_venue=%t cross_chain=%t leveraged=%t", in.CrossVenue, in.CrossChain, in.Leveraged))

	conc := clamp(in.ConcentrationPct, 0, 100)
	add("concentration", conc/cfg.MaxConcentrationPct*5, p.Concentration, conc > cfg.MaxConcentrationPct,
		fmt.Sprintf("%.2f%%, max %.2f%%", conc, cfg.MaxConcentrationPct))

	add("allocation", 0, p.AllocationDrift, in.AllocationDrift, "")

	raw := 0.0
	for _, f := range factors {
		raw += f.Score
	}

	raw *= math.Max(in.VenueWeight, 1) * math.Max(in.ChainWeight, 1)
	raw *= 1 + clamp(in.VolatilityIndex, 0, 1)*cfg.VolatilityMultiplier

	return clamp(raw, 0, 100), factors
}

// Recommend maps a score onto the configured thresholds. A score equal to
// a threshold belongs to the band below it.
func Recommend(score float64, cfg Configuration) Recommendation {
	switch {
	case score <= cfg.LowRiskThreshold:
		return RecommendExecute
	case score <= cfg.MidRiskThreshold:
		return RecommendReduceSize
	default:
		return RecommendReject
	}
}

// Level names the risk band a score falls in.
func Level(score float64, cfg Configuration) string {
	switch Recommend(score, cfg) {
	case RecommendExecute:
		return "low"
	case RecommendReduceSize:
		return "medium"
	default:
		return "high"
	}
}

// EstimateSlippagePct approximates the price impact of trading notional
// against a book whose liquidity score is score. The score is the log10
// of daily quote volume scaled onto 0..100; depth is taken as 1% of that
// volume. Missing liquidity yields the maximum estimate.
func EstimateSlippagePct(notional decimal.Decimal, score float64) float64 {
	if score <= 0 {
		return 100
	}
	depth := math.Pow(10, clamp(score, 0, 100)*9/100) * 0.01
	return clamp(notional.InexactFloat64()/depth*100, 0, 100)
}

// Assess scores and sizes a candidate against the portfolio.
func Assess(c *detection.Candidate, s PortfolioState, cfg Configuration, reg *instrument.Registry) Assessment {
	base := PositionSize(c, s, cfg)
	in := inputsFor(c, s, cfg, reg, base)

	score, factors := Score(in, cfg)
	rec := Recommend(score, cfg)

	size := base
	switch rec {
	case RecommendReduceSize:
		size = base.Div(decimal.NewFromInt(2))
	case RecommendReject:
		size = decimal.Zero
	}

	return Assessment{
		CandidateID:    c.ID,
		Score:          score,
		Factors:        factors,
		Recommendation: rec,
		SlippagePct:    in.SlippagePct,
		BaseSize:       base,
		PositionSize:   ClampSize(size, s, cfg).Round(8),
	}
}

func inputsFor(c *detection.Candidate, s PortfolioState, cfg Configuration, reg *instrument.Registry, size decimal.Decimal) Inputs {
	in := Inputs{
		LiquidityScore:   c.LiquidityScore,
		SlippagePct:      EstimateSlippagePct(size, c.LiquidityScore),
		NetworkCost:      c.NetworkCost,
		Duration:         c.EstimatedDuration,
		CrossVenue:       c.CrossVenue(),
		CrossChain:       c.CrossChain,
		Leveraged:        c.Leveraged(),
		ConcentrationPct: s.ConcentrationPct(c.Symbol.Base, size),
		VenueWeight:      max(weight(cfg.VenueWeights, c.BuyVenue), weight(cfg.VenueWeights, c.SellVenue)),
		ChainWeight:      1,
		VolatilityIndex:  s.VolatilityIndex,
	}

	if reg != nil {
		in.ChainWeight = max(
			weight(cfg.ChainWeights, reg.VenueChain(c.BuyVenue)),
			weight(cfg.ChainWeights, reg.VenueChain(c.SellVenue)),
		)
		in.AllocationDrift = allocationDrift(c, s, cfg, reg, size)
		in.OnChain = reg.VenueChain(c.BuyVenue) != instrument.OffChain ||
			reg.VenueChain(c.SellVenue) != instrument.OffChain
	}
	return in
}

func allocationDrift(c *detection.Candidate, s PortfolioState, cfg Configuration, reg *instrument.Registry, size decimal.Decimal) bool {
	class := reg.ClassOf(c.Symbol.Base)
	target, ok := cfg.TargetAllocation[class]
	if !ok || !s.Balance.IsPositive() {
		return false
	}
	held := size
	for asset, exp := range s.InstrumentExposure {
		if reg.ClassOf(asset) == class {
			held = held.Add(exp)
		}
	}
	return held.Div(s.Balance).InexactFloat64() > target
}

// PositionSize is the fractional-Kelly stake for c, with confidence as the
// win probability and the profit percentage as the payoff ratio, scaled
// down by thin liquidity and high volatility, then clamped.
func PositionSize(c *detection.Candidate, s PortfolioState, cfg Configuration) decimal.Decimal {
	p := clamp(c.Confidence/100, 0, 1)
	b := c.ProfitPct.InexactFloat64()
	if b <= 0 || p == 0 {
		return decimal.Zero
	}

	kelly := p - (1-p)/b
	if kelly <= 0 {
		return decimal.Zero
	}
	f := math.Min(kelly*cfg.KellyFraction, cfg.MaxKellyFraction)
	f *= clamp(c.LiquidityScore/100, 0, 1)
	f /= 1 + clamp(s.VolatilityIndex, 0, 1)*cfg.VolatilityMultiplier

	size := s.Balance.Mul(decimal.NewFromFloat(f))
	if n := c.Notional(); n.IsPositive() {
		size = decimal.Min(size, n)
	}
	return ClampSize(size, s, cfg)
}

// ClampSize bounds a stake by the absolute cap and the per-trade fraction
// of the balance.
func ClampSize(size decimal.Decimal, s PortfolioState, cfg Configuration) decimal.Decimal {
	if !size.IsPositive() || !s.Balance.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(size, cfg.MaxPositionSize, s.Balance.Mul(cfg.MaxFractionPerTrade))
}

func weight[K comparable](weights map[K]float64, k K) float64 {
	if w, ok := weights[k]; ok && w > 0 {
		return w
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}
	return math.Max(lo, math.Min(v, hi))
}
