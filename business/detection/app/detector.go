// Package app contains the opportunity detector.
package app

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-scanner/business/detection/domain"
	mdDomain "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const (
	tracerName = "detection"
	meterName  = "detection"
)

var (
	one        = decimal.NewFromInt(1)
	hundred    = decimal.NewFromInt(100)
	maxStorage = decimal.New(1, 18)
	// Liquidity cap: one candidate takes at most this share of 24h volume.
	volumeShare = decimal.RequireFromString("0.001")
)

type detectorMetrics struct {
	detected metric.Int64Counter
	skipped  metric.Int64Counter
	duration metric.Float64Histogram
}

// Report is the outcome of one detection pass.
type Report struct {
	Candidates []domain.Candidate
	Skipped    int // malformed tickers
	Discarded  int // candidates failing storage-safety checks
}

// Option configures a Detector.
type Option func(*Detector)

// WithIDFunc replaces uuid.NewString for candidate ids.
func WithIDFunc(fn func() string) Option {
	return func(d *Detector) { d.ids = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(d *Detector) { d.now = fn }
}

// Detector turns a ticker snapshot into candidates. Given the same snapshot,
// clock and network cost it returns the same candidates, ids aside.
type Detector struct {
	cfg         Config
	instruments *instrument.Registry
	logger      logger.LoggerInterface
	ids         func() string
	now         func() time.Time

	mu          sync.RWMutex
	networkCost decimal.Decimal

	tracer  trace.Tracer
	metrics *detectorMetrics
}

func NewDetector(cfg Config, instruments *instrument.Registry, log logger.LoggerInterface, opts ...Option) (*Detector, error) {
	d := &Detector{
		cfg:         cfg,
		instruments: instruments,
		logger:      log,
		ids:         uuid.NewString,
		now:         time.Now,
		networkCost: cfg.NetworkCost,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.detected, err = meter.Int64Counter(
		"candidates_detected_total",
		metric.WithDescription("Candidates emitted by the detector"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return err
	}

	d.metrics.skipped, err = meter.Int64Counter(
		"tickers_skipped_total",
		metric.WithDescription("Malformed tickers skipped during detection"),
		metric.WithUnit("{ticker}"),
	)
	if err != nil {
		return err
	}

	d.metrics.duration, err = meter.Float64Histogram(
		"detection_duration_ms",
		metric.WithDescription("Detection pass duration"),
		metric.WithUnit("ms"),
	)
	return err
}

// SetNetworkCost updates the per-transfer network cost used by later passes.
func (d *Detector) SetNetworkCost(cost decimal.Decimal) {
	if cost.IsNegative() {
		cost = decimal.Zero
	}
	d.mu.Lock()
	d.networkCost = cost
	d.mu.Unlock()
}

func (d *Detector) NetworkCost() decimal.Decimal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.networkCost
}

// Policy returns the profit threshold policy.
func (d *Detector) Policy() domain.ProfitPolicy { return d.cfg.Policy }

// Detect returns the candidates for a snapshot.
func (d *Detector) Detect(ctx context.Context, tickers []mdDomain.Ticker) []domain.Candidate {
	return d.DetectWithReport(ctx, tickers).Candidates
}

// DetectWithReport runs every strategy over the snapshot. Secondary
// strategies run only when direct arbitrage finds nothing.
func (d *Detector) DetectWithReport(ctx context.Context, tickers []mdDomain.Ticker) Report {
	ctx, span := d.tracer.Start(ctx, "detection.detect",
		trace.WithAttributes(attribute.Int("tickers", len(tickers))))
	defer span.End()

	start := time.Now()
	p := pass{
		Detector:    d,
		now:         d.now(),
		networkCost: d.NetworkCost(),
	}

	snap, skipped := d.normalize(tickers)
	var report Report
	report.Skipped = skipped
	if skipped > 0 {
		d.metrics.skipped.Add(ctx, int64(skipped))
		d.logger.Warn(ctx, "skipped malformed tickers", "count", skipped, "total", len(tickers))
	}

	var raw []domain.Candidate
	directFound := false
	for _, s := range domain.Strategies() {
		if s.Secondary() && directFound {
			continue
		}
		found := p.run(s, snap)
		if s == domain.StrategyDirect {
			directFound = len(found) > 0
		}
		raw = append(raw, found...)
	}

	slices.SortStableFunc(raw, compareCandidates)

	for _, c := range raw {
		c.ID = d.ids()
		c.CreatedAt = p.now
		c.ExpiresAt = p.now.Add(d.cfg.CandidateTTL)
		c.Status = domain.StatusDiscovered
		if err := c.Validate(); err != nil {
			report.Discarded++
			d.logger.Debug(ctx, "candidate discarded", "strategy", c.Strategy, "symbol", c.Symbol, "error", err)
			continue
		}
		report.Candidates = append(report.Candidates, c)
		d.metrics.detected.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", c.Strategy.String())))
	}

	d.metrics.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	span.SetAttributes(
		attribute.Int("candidates", len(report.Candidates)),
		attribute.Int("skipped", report.Skipped),
	)
	return report
}

func compareCandidates(a, b domain.Candidate) int {
	return cmp.Or(
		cmp.Compare(a.Strategy, b.Strategy),
		strings.Compare(a.Symbol.String(), b.Symbol.String()),
		strings.Compare(a.BuyVenue, b.BuyVenue),
		strings.Compare(a.SellVenue, b.SellVenue),
		a.SellPrice.Cmp(b.SellPrice),
	)
}

// snapshot is the validated, de-duplicated input of one pass.
type snapshot struct {
	tickers  []mdDomain.Ticker // sorted by symbol, venue
	bySymbol map[instrument.Symbol][]mdDomain.Ticker
	byKey    map[mdDomain.Key]mdDomain.Ticker
}

func (d *Detector) normalize(tickers []mdDomain.Ticker) (snapshot, int) {
	skipped := 0
	byKey := make(map[mdDomain.Key]mdDomain.Ticker, len(tickers))
	for _, t := range tickers {
		if err := t.Validate(d.cfg.MaxPrice); err != nil {
			skipped++
			continue
		}
		if prev, ok := byKey[t.Key()]; ok && prev.Timestamp.After(t.Timestamp) {
			continue
		}
		byKey[t.Key()] = t
	}

	snap := snapshot{
		tickers:  make([]mdDomain.Ticker, 0, len(byKey)),
		bySymbol: make(map[instrument.Symbol][]mdDomain.Ticker),
		byKey:    byKey,
	}
	for _, t := range byKey {
		snap.tickers = append(snap.tickers, t)
	}
	slices.SortFunc(snap.tickers, func(a, b mdDomain.Ticker) int {
		return cmp.Or(
			strings.Compare(a.Symbol.String(), b.Symbol.String()),
			strings.Compare(string(a.Venue), string(b.Venue)),
		)
	})
	for _, t := range snap.tickers {
		snap.bySymbol[t.Symbol] = append(snap.bySymbol[t.Symbol], t)
	}
	return snap, skipped
}

// pass holds per-call state so concurrent Detect calls never share it.
type pass struct {
	*Detector
	now         time.Time
	networkCost decimal.Decimal
}

func (p pass) run(s domain.Strategy, snap snapshot) []domain.Candidate {
	switch s {
	case domain.StrategyDirect:
		return p.direct(snap)
	case domain.StrategyTriangular:
		return p.triangular(snap)
	case domain.StrategyMomentum:
		return p.momentum(snap)
	case domain.StrategyYield:
		return p.yield(snap)
	}
	panic(fmt.Sprintf("detection: unhandled strategy %v", s))
}

// direct emits one candidate per venue pair whose bid on one side exceeds
// the ask on the other.
func (p pass) direct(snap snapshot) []domain.Candidate {
	var out []domain.Candidate
	for _, group := range snap.bySymbol {
		for i := range group {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				switch {
				case a.Bid.GreaterThan(b.Ask):
					out = p.appendCross(out, domain.StrategyDirect, b, b.Ask, a, a.Bid)
				case b.Bid.GreaterThan(a.Ask):
					out = p.appendCross(out, domain.StrategyDirect, a, a.Ask, b, b.Bid)
				}
			}
		}
	}
	return out
}

// yield targets convergence of venue mids that do not cross: buy at the
// cheapest venue's ask, exit at the richest venue's mid.
func (p pass) yield(snap snapshot) []domain.Candidate {
	var out []domain.Candidate
	for _, group := range snap.bySymbol {
		if len(group) < 2 {
			continue
		}
		lo, hi := group[0], group[0]
		for _, t := range group[1:] {
			if t.Mid().LessThan(lo.Mid()) {
				lo = t
			}
			if t.Mid().GreaterThan(hi.Mid()) {
				hi = t
			}
		}
		if lo.Venue == hi.Venue {
			continue
		}
		target := hi.Mid().Round(8)
		pct := domain.ProfitPercent(lo.Ask, target)
		if pct.LessThan(p.cfg.YieldMinSpreadPct) {
			continue
		}
		out = p.appendCross(out, domain.StrategyYield, lo, lo.Ask, hi, target)
	}
	return out
}

func (p pass) appendCross(out []domain.Candidate, s domain.Strategy, buy mdDomain.Ticker, buyPrice decimal.Decimal, sell mdDomain.Ticker, sellPrice decimal.Decimal) []domain.Candidate {
	pct := domain.ProfitPercent(buyPrice, sellPrice)
	if !p.cfg.Policy.Accepts(s, pct) {
		return out
	}

	minVol := decimal.Min(buy.Volume24h, sell.Volume24h)
	volume := p.volume(buyPrice, minVol)
	crossChain := p.instruments.CrossChain(string(buy.Venue), string(sell.Venue))

	transfers := int64(1)
	if crossChain {
		transfers = 2
	}
	costs := domain.Costs{
		Fee: domain.TakerFee(buyPrice.Mul(volume), p.cfg.FeePct(string(buy.Venue))).
			Add(domain.TakerFee(sellPrice.Mul(volume), p.cfg.FeePct(string(sell.Venue)))),
		NetworkCost: p.networkCost.Mul(decimal.NewFromInt(transfers)),
	}

	c := p.build(s, buy.Symbol, string(buy.Venue), buyPrice, string(sell.Venue), sellPrice, volume, costs, minVol)
	c.CrossChain = crossChain
	c.RiskLevel = riskLevel(s, c.LiquidityScore, crossChain)
	c.EstimatedDuration = duration(s, crossChain)
	c.Legs = []domain.Leg{
		{Venue: c.BuyVenue, Symbol: c.Symbol, Side: domain.SideBuy, Price: buyPrice},
		{Venue: c.SellVenue, Symbol: c.Symbol, Side: domain.SideSell, Price: sellPrice},
	}
	return append(out, c)
}

// triangular walks each configured asset cycle in both orientations on
// every venue.
func (p pass) triangular(snap snapshot) []domain.Candidate {
	venues := make([]mdDomain.Venue, 0)
	for _, t := range snap.tickers {
		if !slices.Contains(venues, t.Venue) {
			venues = append(venues, t.Venue)
		}
	}
	slices.Sort(venues)

	var out []domain.Candidate
	for _, cycle := range p.cfg.TriangularCycles {
		orientations := [][3]string{cycle, {cycle[0], cycle[2], cycle[1]}}
		for _, v := range venues {
			for _, route := range orientations {
				if c, ok := p.route(snap, v, route); ok {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// route prices A->B->C->A on venue v. A conversion from X to Y buys Y at
// the ask of Y/X or sells X at the bid of X/Y.
func (p pass) route(snap snapshot, v mdDomain.Venue, r [3]string) (domain.Candidate, bool) {
	ret := one
	legs := make([]domain.Leg, 0, 3)
	var firstRate decimal.Decimal
	minVol := decimal.Zero

	for i := range 3 {
		from, to := r[i], r[(i+1)%3]
		var rate decimal.Decimal
		var leg domain.Leg
		var vol decimal.Decimal

		if t, ok := snap.byKey[mdDomain.Key{Venue: v, Symbol: instrument.NewSymbol(to, from)}]; ok {
			rate = one.Div(t.Ask)
			leg = domain.Leg{Venue: string(v), Symbol: t.Symbol, Side: domain.SideBuy, Price: t.Ask}
			vol = t.Volume24h
		} else if t, ok := snap.byKey[mdDomain.Key{Venue: v, Symbol: instrument.NewSymbol(from, to)}]; ok {
			rate = t.Bid
			leg = domain.Leg{Venue: string(v), Symbol: t.Symbol, Side: domain.SideSell, Price: t.Bid}
			vol = t.Volume24h
		} else {
			return domain.Candidate{}, false
		}

		if i == 0 {
			firstRate = rate
			minVol = vol
		} else {
			minVol = decimal.Min(minVol, vol)
		}
		ret = ret.Mul(rate)
		legs = append(legs, leg)
	}

	sellPrice := ret.Round(12)
	pct := domain.ProfitPercent(one, sellPrice)
	if !p.cfg.Policy.Accepts(domain.StrategyTriangular, pct) {
		return domain.Candidate{}, false
	}

	// DefaultVolume units of the first acquired asset, expressed in A.
	volume := p.cfg.DefaultVolume.Div(firstRate).Round(8)
	onChain := p.instruments.VenueChain(string(v)) != instrument.OffChain
	costs := domain.Costs{
		Fee: domain.TakerFee(volume, p.cfg.FeePct(string(v))).Mul(decimal.NewFromInt(3)),
	}
	if onChain {
		costs.NetworkCost = p.networkCost.Mul(decimal.NewFromInt(3))
	}

	c := p.build(domain.StrategyTriangular, legs[0].Symbol, string(v), one, string(v), sellPrice, volume, costs, minVol)
	c.RiskLevel = riskLevel(domain.StrategyTriangular, c.LiquidityScore, false)
	c.EstimatedDuration = duration(domain.StrategyTriangular, false)
	c.Legs = legs
	return c, true
}

// momentum follows a strong 24h move on liquid instruments, expecting a
// fraction of the move to continue.
func (p pass) momentum(snap snapshot) []domain.Candidate {
	var out []domain.Candidate
	for _, t := range snap.tickers {
		if t.ChangePct.LessThan(p.cfg.MomentumMinChangePct) || t.Volume24h.LessThan(p.cfg.MomentumMinVolume) {
			continue
		}
		expected := t.ChangePct.Mul(p.cfg.MomentumCapture)
		target := t.Ask.Mul(one.Add(expected.Div(hundred))).Round(8)
		pct := domain.ProfitPercent(t.Ask, target)
		if !p.cfg.Policy.Accepts(domain.StrategyMomentum, pct) {
			continue
		}

		volume := p.volume(t.Ask, t.Volume24h)
		fee := p.cfg.FeePct(string(t.Venue))
		costs := domain.Costs{
			Fee: domain.TakerFee(t.Ask.Mul(volume), fee).Add(domain.TakerFee(target.Mul(volume), fee)),
		}
		if p.instruments.VenueChain(string(t.Venue)) != instrument.OffChain {
			costs.NetworkCost = p.networkCost.Mul(decimal.NewFromInt(2))
		}

		c := p.build(domain.StrategyMomentum, t.Symbol, string(t.Venue), t.Ask, string(t.Venue), target, volume, costs, t.Volume24h)
		c.RiskLevel = riskLevel(domain.StrategyMomentum, c.LiquidityScore, false)
		c.EstimatedDuration = duration(domain.StrategyMomentum, false)
		c.Legs = []domain.Leg{
			{Venue: c.BuyVenue, Symbol: t.Symbol, Side: domain.SideBuy, Price: t.Ask},
			{Venue: c.SellVenue, Symbol: t.Symbol, Side: domain.SideSell, Price: target},
		}
		out = append(out, c)
	}
	return out
}

// volume is DefaultVolume capped at volumeShare of the 24h quote volume.
func (p pass) volume(price, quoteVolume decimal.Decimal) decimal.Decimal {
	v := p.cfg.DefaultVolume
	if quoteVolume.IsPositive() && price.IsPositive() {
		v = decimal.Min(v, quoteVolume.Mul(volumeShare).Div(price))
	}
	return v.Round(8)
}

func (p pass) build(s domain.Strategy, sym instrument.Symbol, buyVenue string, buy decimal.Decimal, sellVenue string, sell, volume decimal.Decimal, costs domain.Costs, quoteVolume decimal.Decimal) domain.Candidate {
	pct := domain.ProfitPercent(buy, sell).Round(domain.ProfitPctPlaces)
	gross := clamp(sell.Sub(buy).Mul(volume).Round(8))
	fee := clamp(costs.Fee.Round(8))
	network := clamp(costs.NetworkCost.Round(8))

	liquidity := liquidityScore(quoteVolume)
	return domain.Candidate{
		Strategy:       s,
		Symbol:         sym,
		BuyVenue:       buyVenue,
		BuyPrice:       buy,
		SellVenue:      sellVenue,
		SellPrice:      sell,
		Volume:         clamp(volume),
		GrossProfit:    gross,
		ProfitPct:      pct,
		Fee:            fee,
		NetworkCost:    network,
		NetProfit:      clamp(gross.Sub(fee).Sub(network)),
		LiquidityScore: liquidity,
		Confidence:     confidence(s, pct, p.cfg.Policy.MaxPct, liquidity),
	}
}

// clamp bounds a value to what the stores can hold.
func clamp(d decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(maxStorage) {
		return maxStorage
	}
	if d.LessThan(maxStorage.Neg()) {
		return maxStorage.Neg()
	}
	return d
}

// liquidityScore maps 24h quote volume onto 0..100 on a log scale; 1e9
// scores 100.
func liquidityScore(quoteVolume decimal.Decimal) float64 {
	v := quoteVolume.InexactFloat64()
	if v <= 1 {
		return 0
	}
	return bounded(math.Log10(v)/9*100, 0, 100)
}

// confidence starts from a per-strategy base, scales with liquidity, and
// discounts spreads close to the glitch bound.
func confidence(s domain.Strategy, pct, maxPct decimal.Decimal, liquidity float64) float64 {
	var base float64
	switch s {
	case domain.StrategyDirect:
		base = 85
	case domain.StrategyTriangular:
		base = 75
	case domain.StrategyMomentum:
		base = 55
	case domain.StrategyYield:
		base = 45
	}

	c := base * (0.5 + liquidity/200)
	if maxPct.IsPositive() {
		c -= pct.Div(maxPct).InexactFloat64() * 40
	}
	return math.Round(bounded(c, 0, 100)*100) / 100
}

func riskLevel(s domain.Strategy, liquidity float64, crossChain bool) int {
	var level int
	switch s {
	case domain.StrategyDirect:
		level = 1
	case domain.StrategyTriangular, domain.StrategyYield:
		level = 2
	case domain.StrategyMomentum:
		level = 3
	}
	if liquidity < 30 {
		level++
	}
	if crossChain {
		level++
	}
	return min(max(level, domain.MinRiskLevel), domain.MaxRiskLevel)
}

func duration(s domain.Strategy, crossChain bool) time.Duration {
	if crossChain {
		return 5 * time.Minute
	}
	switch s {
	case domain.StrategyDirect:
		return 30 * time.Second
	case domain.StrategyTriangular:
		return 15 * time.Second
	case domain.StrategyMomentum:
		return 5 * time.Minute
	case domain.StrategyYield:
		return 10 * time.Minute
	}
	return 10 * time.Minute
}

// bounded also maps NaN to lo.
func bounded(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
