package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

// SchedulerConfig drives the periodic loops. A zero maintenance interval
// disables that loop.
type SchedulerConfig struct {
	Interval          time.Duration
	MaxConcurrent     int
	StopTimeout       time.Duration
	RollupInterval    time.Duration
	RiskCheckInterval time.Duration
	ExpiryInterval    time.Duration
	PerformanceWindow time.Duration
}

func (c SchedulerConfig) validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	case c.MaxConcurrent < 1:
		return fmt.Errorf("max concurrent scans must be at least 1, got %d", c.MaxConcurrent)
	case c.StopTimeout <= 0:
		return fmt.Errorf("stop timeout must be positive, got %s", c.StopTimeout)
	case c.RollupInterval > 0 && c.PerformanceWindow <= 0:
		return fmt.Errorf("performance window must be positive, got %s", c.PerformanceWindow)
	}
	return nil
}

// Stats are the scheduler's running totals.
type Stats struct {
	CycleCount         int64             `json:"cycle_count"`
	SkippedCycles      int64             `json:"skipped_cycles"`
	TotalOpportunities int64             `json:"total_opportunities"`
	SuccessfulTrades   int64             `json:"successful_trades"`
	FailedTrades       int64             `json:"failed_trades"`
	AdapterErrors      int64             `json:"adapter_errors"`
	TotalProfit        decimal.Decimal   `json:"total_profit"`
	Outcomes           map[Outcome]int64 `json:"outcomes"`
	LastCycleAt        time.Time         `json:"last_cycle_at"`
	LastSuccessAt      time.Time         `json:"last_success_at"`
}

// Status is the control surface's view of the scanner.
type Status struct {
	Running          bool                `json:"running"`
	Halted           string              `json:"halted,omitempty"`
	InFlight         int                 `json:"in_flight"`
	RiskLevel        string              `json:"risk_level"`
	ExecutionEnabled bool                `json:"execution_enabled"`
	Paused           bool                `json:"paused"`
	Portfolio        risk.PortfolioState `json:"portfolio"`
	MarketData       md.Status           `json:"market_data"`
	LastCycle        *CycleReport        `json:"last_cycle,omitempty"`
	Stats
}

type schedulerMetrics struct {
	cycles    metric.Int64Counter
	skipped   metric.Int64Counter
	inFlight  metric.Int64UpDownCounter
	duration  metric.Float64Histogram
	dailyLoss metric.Float64Gauge
	emergency metric.Int64Gauge
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReporter renders every finished cycle.
func WithReporter(r Reporter) SchedulerOption {
	return func(s *Scheduler) { s.reporter = r }
}

// WithSchedulerClock replaces time.Now.
func WithSchedulerClock(fn func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = fn }
}

// Scheduler triggers scan cycles on a fixed period and runs the
// maintenance loops beside them. It is the single owner of the cycle
// counters. A tick that finds MaxConcurrent cycles in flight is dropped,
// never queued.
type Scheduler struct {
	cfg      SchedulerConfig
	pipeline *Pipeline
	risk     RiskEngine
	executor Executor
	reporter Reporter
	logger   logger.LoggerInterface
	now      func() time.Time

	seq atomic.Int64

	mu       sync.Mutex
	running  bool
	halted   error
	cancel   context.CancelFunc
	loops    chan struct{} // closed once the loop group has exited
	inFlight int
	idle     chan struct{} // closed when inFlight drops to zero
	stats    Stats
	last     *CycleReport

	metrics *schedulerMetrics
}

func NewScheduler(cfg SchedulerConfig, pipeline *Pipeline, riskEngine RiskEngine, executor Executor, log logger.LoggerInterface, opts ...SchedulerOption) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid scheduler config"))
	}

	s := &Scheduler{
		cfg:      cfg,
		pipeline: pipeline,
		risk:     riskEngine,
		executor: executor,
		logger:   log,
		now:      time.Now,
		stats:    Stats{Outcomes: make(map[Outcome]int64)},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Scheduler) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &schedulerMetrics{}

	s.metrics.cycles, err = meter.Int64Counter(
		"scan_cycles_total",
		metric.WithDescription("Completed scan cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	s.metrics.skipped, err = meter.Int64Counter(
		"scan_cycles_skipped_total",
		metric.WithDescription("Scan ticks dropped because too many cycles were in flight"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	s.metrics.inFlight, err = meter.Int64UpDownCounter(
		"scans_in_flight",
		metric.WithDescription("Scan cycles currently running"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	s.metrics.duration, err = meter.Float64Histogram(
		"scan_cycle_duration_ms",
		metric.WithDescription("Scan cycle duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.dailyLoss, err = meter.Float64Gauge(
		"portfolio_daily_loss",
		metric.WithDescription("Realized loss for the current day"),
	)
	if err != nil {
		return err
	}

	s.metrics.emergency, err = meter.Int64Gauge(
		"emergency_stop_active",
		metric.WithDescription("1 while the emergency stop blocks execution"),
	)
	return err
}

// Start launches the scan and maintenance loops. Starting a running
// scheduler is a no-op. The loops outlive ctx; only Stop or a persistence
// failure ends them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info(ctx, "scheduler already running")
		return nil
	}
	if s.halted != nil {
		err := s.halted
		s.mu.Unlock()
		return apperror.New(apperror.CodeSchedulerNotRunning,
			apperror.WithCause(err),
			apperror.WithContext("scheduler halted after persistence failure"))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	loops := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.loops = loops
	s.mu.Unlock()

	g.Go(func() error { return s.loop(gctx, s.cfg.Interval, true, s.tick) })
	g.Go(func() error { return s.loop(gctx, s.cfg.RollupInterval, false, s.rollup) })
	g.Go(func() error { return s.loop(gctx, s.cfg.RiskCheckInterval, false, s.checkRisk) })
	g.Go(func() error { return s.loop(gctx, s.cfg.ExpiryInterval, false, s.expire) })

	go func() {
		defer close(loops)
		if err := g.Wait(); err != nil {
			s.halt(context.WithoutCancel(ctx), s.seq.Load(), err)
		}
	}()

	s.logger.Info(ctx, "scheduler started",
		"interval", s.cfg.Interval,
		"max_concurrent", s.cfg.MaxConcurrent,
	)
	return nil
}

// Stop ends the loops and waits, up to StopTimeout, for in-flight cycles
// to finish. In-flight executions are never aborted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, loops := s.cancel, s.loops
	wasRunning := s.running
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if loops != nil {
		<-loops
	}

	if err := s.drain(ctx); err != nil {
		s.logger.Error(ctx, "scheduler stop timed out", "in_flight", s.InFlight(), "error", err)
		return err
	}
	if wasRunning {
		s.logger.Info(ctx, "scheduler stopped", "cycles", s.seq.Load())
	}
	return nil
}

func (s *Scheduler) drain(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-idle:
		return nil
	case <-timer.C:
		return apperror.New(apperror.CodeServiceTimeout,
			apperror.WithContext(fmt.Sprintf("in-flight scan cycles did not drain within %s", s.cfg.StopTimeout)))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger runs one cycle now, outside the periodic schedule and the
// concurrency cap. The cycle completes even if ctx is cancelled.
func (s *Scheduler) Trigger(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	halted := s.halted
	s.mu.Unlock()
	if halted != nil {
		return CycleReport{}, apperror.New(apperror.CodeSchedulerNotRunning,
			apperror.WithCause(halted),
			apperror.WithContext("scheduler halted after persistence failure"))
	}

	s.acquire(ctx, true)
	defer s.release(ctx)
	return s.runCycle(context.WithoutCancel(ctx), true)
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, immediate bool, fn func(context.Context) error) error {
	if every <= 0 {
		return nil
	}
	if immediate {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	if !s.acquire(ctx, false) {
		s.metrics.skipped.Add(ctx, 1)
		s.logger.Debug(ctx, "scan tick skipped, cycles in flight", "max", s.cfg.MaxConcurrent)
		return nil
	}

	go func() {
		defer s.release(ctx)
		// Stop must not tear down a cycle half way through persistence.
		s.runCycle(context.WithoutCancel(ctx), false)
	}()
	return nil
}

func (s *Scheduler) acquire(ctx context.Context, manual bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !manual && s.inFlight >= s.cfg.MaxConcurrent {
		s.stats.SkippedCycles++
		return false
	}
	if s.inFlight == 0 {
		s.idle = make(chan struct{})
	}
	s.inFlight++
	s.metrics.inFlight.Add(ctx, 1)
	return true
}

func (s *Scheduler) release(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight--
	s.metrics.inFlight.Add(context.WithoutCancel(ctx), -1)
	if s.inFlight == 0 {
		close(s.idle)
	}
}

func (s *Scheduler) runCycle(ctx context.Context, manual bool) (CycleReport, error) {
	n := s.seq.Add(1)

	report, err := s.pipeline.RunCycle(ctx, n)
	report.Manual = manual
	s.record(report, err)

	s.metrics.cycles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(report.Outcome)),
		attribute.Bool("manual", manual),
	))
	s.metrics.duration.Record(ctx, float64(report.Duration.Microseconds())/1000)

	s.logger.Debug(ctx, "scan cycle finished",
		"cycle", n,
		"outcome", report.Outcome,
		"candidates", len(report.Candidates),
		"executed", report.Result.Executed,
		"duration", report.Duration,
	)

	if s.reporter != nil {
		s.reporter.ReportCycle(report)
		s.reporter.UpdateConnectionStatus(s.pipeline.MarketStatus())
	}

	if err != nil {
		s.halt(ctx, n, err)
	}
	return report, err
}

func (s *Scheduler) record(r CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.stats
	st.CycleCount++
	st.Outcomes[r.Outcome]++
	st.TotalOpportunities += int64(len(r.Candidates))
	st.SuccessfulTrades += int64(r.Result.Confirmed)
	st.FailedTrades += int64(r.Result.Failed)
	st.AdapterErrors += int64(r.Result.AdapterErrors)
	st.TotalProfit = st.TotalProfit.Add(r.Result.Profit)
	st.LastCycleAt = r.StartedAt
	if err == nil {
		st.LastSuccessAt = s.now()
	}
	s.last = &r
}

// halt stops the loops after an unrecoverable error. In-flight cycles are
// left to finish; Stop still drains them.
func (s *Scheduler) halt(ctx context.Context, cycle int64, err error) {
	s.mu.Lock()
	if s.halted == nil {
		s.halted = err
	}
	cancel := s.cancel
	s.running = false
	lastSuccess := s.stats.LastSuccessAt
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Error(ctx, "scheduler halted",
		"cycle", cycle,
		"last_success", lastSuccess,
		"error", err,
	)
}

func (s *Scheduler) rollup(ctx context.Context) error {
	perf, err := s.executor.RecentPerformance(ctx, s.cfg.PerformanceWindow)
	if err != nil {
		return s.maintenanceError(ctx, "performance rollup", err)
	}
	em := s.risk.ApplyPerformance(ctx, perf)
	s.observeRisk(ctx, em)
	return nil
}

func (s *Scheduler) checkRisk(ctx context.Context) error {
	s.observeRisk(ctx, s.risk.CheckEmergency(ctx))
	return nil
}

func (s *Scheduler) expire(ctx context.Context) error {
	if _, err := s.executor.ExpireStale(ctx); err != nil {
		return s.maintenanceError(ctx, "expiry sweep", err)
	}
	return nil
}

// maintenanceError passes persistence failures up to halt the scheduler.
// Anything else is logged and retried on the next tick.
func (s *Scheduler) maintenanceError(ctx context.Context, task string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	if apperror.HasCode(err, apperror.CodePersistenceUnavailable) {
		return err
	}
	s.logger.Warn(ctx, "maintenance task failed", "task", task, "error", err)
	return nil
}

func (s *Scheduler) observeRisk(ctx context.Context, em risk.Emergency) {
	p := s.risk.Portfolio()
	s.metrics.dailyLoss.Record(ctx, p.DailyLoss.InexactFloat64())
	var active int64
	if em.ShouldStop {
		active = 1
	}
	s.metrics.emergency.Record(ctx, active)
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Halted returns the error that halted the scheduler, if any.
func (s *Scheduler) Halted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Status returns the last-good counters together with the risk and market
// data views.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:  s.running,
		InFlight: s.inFlight,
		Stats:    s.stats,
	}
	st.Outcomes = maps.Clone(s.stats.Outcomes)
	if s.halted != nil {
		st.Halted = s.halted.Error()
	}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	s.mu.Unlock()

	st.Portfolio = s.risk.Portfolio()
	st.RiskLevel = s.risk.Level()
	st.ExecutionEnabled = st.Portfolio.ExecutionEnabled
	st.Paused = st.Portfolio.Paused
	st.MarketData = s.pipeline.MarketStatus()
	return st
}
