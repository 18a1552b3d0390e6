package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/business/risk/domain"
)

// Tracker owns the portfolio state. Every mutation goes through its lock,
// so concurrent cycles cannot lose updates; reads get a deep copy.
type Tracker struct {
	mu        sync.RWMutex
	state     domain.PortfolioState
	positions map[string]domain.Position
	enabled   atomic.Bool
	now       func() time.Time
}

func NewTracker(balance decimal.Decimal, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		state:     domain.NewPortfolioState(balance, now()),
		positions: make(map[string]domain.Position),
		now:       now,
	}
	t.enabled.Store(true)
	return t
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() domain.PortfolioState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// ExecutionEnabled is the lock-free emergency gate.
func (t *Tracker) ExecutionEnabled() bool { return t.enabled.Load() }

// Open records capital committed to p. Opening the same candidate twice is
// a no-op.
func (t *Tracker) Open(p domain.Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.positions[p.CandidateID]; ok {
		return false
	}
	t.positions[p.CandidateID] = p
	t.state.ActivePositions++
	t.state.InstrumentExposure[p.Asset] = t.state.InstrumentExposure[p.Asset].Add(p.Size)
	for _, v := range p.Venues {
		t.state.VenueExposure[v] = t.state.VenueExposure[v].Add(p.Size)
	}
	t.touch()
	return true
}

// Close releases the position for candidateID and books pnl. Unknown ids
// are ignored.
func (t *Tracker) Close(candidateID string, pnl decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[candidateID]
	if !ok {
		return false
	}
	delete(t.positions, candidateID)

	t.state.ActivePositions--
	release(t.state.InstrumentExposure, p.Asset, p.Size)
	for _, v := range p.Venues {
		release(t.state.VenueExposure, v, p.Size)
	}

	t.rollDay()
	t.state.Balance = t.state.Balance.Add(pnl)
	if t.state.Balance.GreaterThan(t.state.PeakBalance) {
		t.state.PeakBalance = t.state.Balance
	}
	t.state.DailyPnL = t.state.DailyPnL.Add(pnl)
	t.state.DailyLoss = lossOf(t.state.DailyPnL)
	t.touch()
	return true
}

// SetBalance rebases the portfolio on an operator-supplied balance. The
// peak moves with it, so drawdown is measured from the new base.
func (t *Tracker) SetBalance(balance decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Balance = balance
	t.state.PeakBalance = balance
	t.touch()
}

// ApplyPerformance replaces the daily figures with the persisted rollup.
func (t *Tracker) ApplyPerformance(p domain.Performance) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollDay()
	t.state.DailyPnL = p.DailyPnL
	t.state.DailyLoss = lossOf(p.DailyPnL)
	t.touch()
}

// SetMarket records the latest volatility and liquidity indices.
func (t *Tracker) SetMarket(volatility, liquidity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.VolatilityIndex = volatility
	t.state.LiquidityIndex = liquidity
	t.touch()
}

func (t *Tracker) SetAggregateRisk(score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.AggregateRisk = score
	t.touch()
}

// SetEmergency stores e and flips the execution gate to match it. It
// reports whether the gate changed.
func (t *Tracker) SetEmergency(e domain.Emergency) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	enabled := !e.ShouldStop
	changed := t.state.ExecutionEnabled != enabled
	t.state.Emergency = e
	t.state.ExecutionEnabled = enabled
	t.enabled.Store(enabled)
	t.touch()
	return changed
}

// SetPaused holds or releases new executions at the operator's request.
// The emergency gate is untouched. It reports whether the hold changed.
func (t *Tracker) SetPaused(paused bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.state.Paused != paused
	t.state.Paused = paused
	t.touch()
	return changed
}

func (t *Tracker) rollDay() {
	now := t.now()
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if today.After(t.state.Day) {
		t.state.Day = today
		t.state.DailyPnL = decimal.Zero
		t.state.DailyLoss = decimal.Zero
	}
}

func (t *Tracker) touch() { t.state.UpdatedAt = t.now() }

func release(m map[string]decimal.Decimal, k string, size decimal.Decimal) {
	left := m[k].Sub(size)
	if left.IsPositive() {
		m[k] = left
		return
	}
	delete(m, k)
}

func lossOf(pnl decimal.Decimal) decimal.Decimal {
	if pnl.IsNegative() {
		return pnl.Neg()
	}
	return decimal.Zero
}
