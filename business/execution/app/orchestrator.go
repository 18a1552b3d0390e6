package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const (
	tracerName = "execution"
	meterName  = "execution"
)

// Config tunes the orchestrator.
type Config struct {
	BatchSize        int           // max executions per cycle
	ExecutionTimeout time.Duration // per adapter call
	Policy           detection.ProfitPolicy
	Retention        time.Duration // how long terminal candidates stay in the registry
}

// CycleResult summarises one pass through the gate and the adapter.
type CycleResult struct {
	Detected      int                    `json:"detected"`
	Admitted      int                    `json:"admitted"`
	Rejected      int                    `json:"rejected"`
	Expired       int                    `json:"expired"`
	Executed      int                    `json:"executed"`
	Confirmed     int                    `json:"confirmed"`
	Failed        int                    `json:"failed"`
	AdapterErrors int                    `json:"adapter_errors"`
	Skipped       int                    `json:"skipped"` // duplicates and claims held elsewhere
	CircuitOpen   int                    `json:"circuit_open"`
	Halted        int                    `json:"halted"` // admitted, left behind by an emergency stop
	Profit        decimal.Decimal        `json:"profit"`
	Decisions     []domain.Decision      `json:"decisions,omitempty"`
	Trades        []domain.ExecutedTrade `json:"trades,omitempty"`
}

type orchestratorMetrics struct {
	decisions  metric.Int64Counter
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClaimer(c Claimer) Option {
	return func(o *Orchestrator) { o.claimer = c }
}

func WithPublisher(p TradePublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

func WithIDFunc(fn func() string) Option {
	return func(o *Orchestrator) { o.ids = fn }
}

// Orchestrator admits candidates through the gate and drives each admitted
// one through the adapter at most once.
type Orchestrator struct {
	cfg       Config
	adapter   Adapter
	store     Store
	risk      RiskEngine
	portfolio Portfolio
	claimer   Claimer
	publisher TradePublisher
	registry  *Registry
	breaker   *circuitbreaker.CircuitBreaker[domain.Result]
	logger    logger.LoggerInterface
	now       func() time.Time
	ids       func() string

	tracer  trace.Tracer
	metrics *orchestratorMetrics
}

func NewOrchestrator(cfg Config, adapter Adapter, store Store, riskEngine RiskEngine, portfolio Portfolio, log logger.LoggerInterface, opts ...Option) (*Orchestrator, error) {
	if cfg.BatchSize < 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("batch size cannot be negative"))
	}
	if cfg.ExecutionTimeout <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("execution timeout must be positive"))
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}

	o := &Orchestrator{
		cfg:       cfg,
		adapter:   adapter,
		store:     store,
		risk:      riskEngine,
		portfolio: portfolio,
		logger:    log,
		now:       time.Now,
		ids:       uuid.NewString,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.registry = NewRegistry(o.now)

	bcfg := circuitbreaker.DefaultConfig("execution-" + adapter.Name())
	bcfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		o.logger.Warn(context.Background(), "execution breaker state changed",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	o.breaker = circuitbreaker.New[domain.Result](bcfg)

	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return o, nil
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &orchestratorMetrics{}

	o.metrics.decisions, err = meter.Int64Counter(
		"gate_decisions_total",
		metric.WithDescription("Admission decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	o.metrics.executions, err = meter.Int64Counter(
		"executions_total",
		metric.WithDescription("Execution attempts by terminal status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return err
	}

	o.metrics.duration, err = meter.Float64Histogram(
		"execution_duration_ms",
		metric.WithDescription("Adapter call duration"),
		metric.WithUnit("ms"),
	)
	return err
}

// Registry exposes the live candidate statuses.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Process runs one cycle's candidates through the gate and executes the
// best admitted ones. Per-candidate problems are counted, never returned;
// the only error is an unavailable store.
func (o *Orchestrator) Process(ctx context.Context, candidates []detection.Candidate) (CycleResult, error) {
	ctx, span := o.tracer.Start(ctx, "execution.process",
		trace.WithAttributes(attribute.Int("candidates", len(candidates))),
	)
	defer span.End()

	res := CycleResult{Detected: len(candidates)}
	if len(candidates) == 0 {
		return res, nil
	}

	fresh := make([]detection.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.Status = detection.StatusDiscovered
		if !o.registry.Add(c) {
			res.Skipped++
			continue
		}
		if err := o.store.SaveCandidate(ctx, &c); err != nil {
			return res, o.persistenceFailure(span, "save candidate", err)
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	assessments, state := o.risk.AssessBatch(ctx, fresh)
	riskCfg := o.risk.Config()
	now := o.now()

	var admitted []domain.Ranked
	for i := range fresh {
		c := &fresh[i]
		d := domain.Admit(domain.GateInput{
			Candidate:  c,
			Assessment: assessments[i],
			Portfolio:  state,
			Policy:     o.cfg.Policy,
			MinSize:    riskCfg.MinPositionSize,
			Now:        now,
		})
		res.Decisions = append(res.Decisions, d)

		next := detection.StatusAdmitted
		switch {
		case d.Admitted:
			res.Admitted++
		case d.Reason == domain.ReasonExpired:
			next = detection.StatusExpired
			res.Expired++
		default:
			next = detection.StatusRejected
			res.Rejected++
		}
		o.metrics.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", c.Strategy.String()),
			attribute.String("status", string(next)),
		))

		if err := o.transition(ctx, c.ID, detection.StatusDiscovered, next, d.Reason); err != nil {
			if apperror.HasCode(err, apperror.CodePersistenceUnavailable) {
				return res, err
			}
			o.logger.Debug(ctx, "candidate moved before admission", "id", c.ID, "error", err)
			continue
		}
		if d.Admitted {
			admitted = append(admitted, domain.Ranked{Candidate: c, Size: d.Size})
		}
	}

	ranked := domain.Rank(admitted, o.cfg.BatchSize)
	for i, r := range ranked {
		trade, err := o.execute(ctx, r.Candidate, r.Size, riskCfg.MaxSlippagePct)
		switch {
		case apperror.HasCode(err, apperror.CodeCircuitOpen):
			res.CircuitOpen++
			continue
		case err != nil:
			return res, err
		case trade == nil:
			res.Skipped++
			continue
		}
		res.Executed++
		res.Trades = append(res.Trades, *trade)
		if trade.Succeeded() {
			res.Confirmed++
			res.Profit = res.Profit.Add(trade.ProfitRealized)
		} else {
			res.Failed++
			res.AdapterErrors++
		}

		// The trade just booked may have crossed a hard limit.
		if em := o.risk.CheckEmergency(ctx); em.ShouldStop {
			res.Halted = len(ranked) - i - 1
			if res.Halted > 0 {
				o.logger.Warn(ctx, "emergency stop mid-batch, leaving admitted candidates unexecuted",
					"left", res.Halted, "severity", em.Severity)
			}
			break
		}
	}

	span.SetAttributes(
		attribute.Int("admitted", res.Admitted),
		attribute.Int("executed", res.Executed),
	)
	return res, nil
}

// execute claims c, calls the adapter once and records the outcome. A nil
// trade with a nil error means the candidate was not ours to execute.
func (o *Orchestrator) execute(ctx context.Context, c *detection.Candidate, size decimal.Decimal, maxSlippage float64) (*domain.ExecutedTrade, error) {
	ctx, span := o.tracer.Start(ctx, "execution.execute",
		trace.WithAttributes(
			attribute.String("candidate_id", c.ID),
			attribute.String("strategy", c.Strategy.String()),
			attribute.String("size", size.StringFixed(2)),
		),
	)
	defer span.End()

	if c.Expired(o.now()) {
		if err := o.transition(ctx, c.ID, detection.StatusAdmitted, detection.StatusExpired, domain.ReasonExpired); err != nil &&
			apperror.HasCode(err, apperror.CodePersistenceUnavailable) {
			return nil, err
		}
		return nil, nil
	}

	if o.claimer != nil {
		ok, err := o.claimer.Claim(ctx, c.ID)
		if err != nil {
			o.logger.Warn(ctx, "claim failed, leaving candidate for expiry", "id", c.ID, "error", err)
			return nil, nil
		}
		if !ok {
			o.logger.Debug(ctx, "candidate claimed elsewhere", "id", c.ID)
			return nil, nil
		}
		defer func() {
			if err := o.claimer.Release(context.WithoutCancel(ctx), c.ID); err != nil {
				o.logger.Warn(ctx, "claim release failed", "id", c.ID, "error", err)
			}
		}()
	}

	if o.breaker.State() == circuitbreaker.StateOpen {
		o.logger.Debug(ctx, "execution breaker open, candidate left admitted", "id", c.ID)
		return nil, circuitOpenError(c.ID)
	}

	if err := o.registry.Transition(c.ID, detection.StatusAdmitted, detection.StatusExecuting, ""); err != nil {
		o.logger.Debug(ctx, "candidate not claimable", "id", c.ID, "error", err)
		return nil, nil
	}
	if err := o.store.UpdateCandidateStatus(ctx, c.ID, detection.StatusExecuting, ""); err != nil {
		_ = o.registry.Transition(c.ID, detection.StatusExecuting, detection.StatusFailed, "persistence unavailable")
		return nil, o.persistenceFailure(span, "mark executing", err)
	}

	req := domain.NewRequest(c, size, maxSlippage)
	o.portfolio.Open(risk.Position{
		CandidateID: c.ID,
		Asset:       c.Symbol.Base,
		Venues:      venues(c),
		Size:        size,
	})

	started := o.now()
	result, callErr := o.call(ctx, req)
	completed := o.now()

	// A breaker rejection never reached the venue, so there is no trade to
	// record.
	if apperror.HasCode(callErr, apperror.CodeCircuitOpen) {
		o.portfolio.Close(c.ID, decimal.Zero)
		if err := o.transition(ctx, c.ID, detection.StatusExecuting, detection.StatusFailed, reasonCircuitOpen); err != nil &&
			apperror.HasCode(err, apperror.CodePersistenceUnavailable) {
			return nil, err
		}
		o.logger.Warn(ctx, "execution breaker rejected call", "id", c.ID, "error", callErr)
		return nil, callErr
	}

	trade := &domain.ExecutedTrade{
		ID:             o.ids(),
		CandidateID:    c.ID,
		Strategy:       c.Strategy,
		Symbol:         c.Symbol,
		Side:           req.Side,
		BuyVenue:       c.BuyVenue,
		SellVenue:      c.SellVenue,
		AmountTraded:   result.RealizedAmount,
		PositionSize:   size,
		ExpectedProfit: c.NetProfit,
		ExternalRef:    result.ExternalRef,
		StartedAt:      started,
		CompletedAt:    completed,
	}
	switch {
	case callErr != nil:
		trade.Status = detection.StatusFailed
		trade.Error = callErr.Error()
		span.RecordError(callErr)
	case !result.Success:
		trade.Status = detection.StatusFailed
		trade.Error = result.Error
		if trade.Error == "" {
			trade.Error = "adapter reported failure"
		}
	default:
		trade.Status = detection.StatusConfirmed
		trade.ProfitRealized = result.RealizedProfit
	}

	o.portfolio.Close(c.ID, trade.ProfitRealized)
	_ = o.registry.Transition(c.ID, detection.StatusExecuting, trade.Status, trade.Error)

	o.metrics.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("adapter", o.adapter.Name()),
		attribute.String("status", string(trade.Status)),
	))
	o.metrics.duration.Record(ctx, float64(trade.Duration().Microseconds())/1000)

	if err := o.store.SaveExecutedTrade(ctx, trade); err != nil {
		return nil, o.persistenceFailure(span, "save trade", err)
	}
	if err := o.store.UpdateCandidateStatus(ctx, c.ID, trade.Status, trade.Error); err != nil {
		return nil, o.persistenceFailure(span, "mark "+string(trade.Status), err)
	}

	if trade.Succeeded() {
		o.logger.Info(ctx, "execution confirmed",
			"id", c.ID,
			"strategy", c.Strategy,
			"symbol", c.Symbol.String(),
			"amount", trade.AmountTraded.String(),
			"profit", trade.ProfitRealized.String(),
			"ref", trade.ExternalRef,
		)
	} else {
		o.logger.Warn(ctx, "execution failed", "id", c.ID, "error", trade.Error)
	}

	if o.publisher != nil {
		if err := o.publisher.PublishTrade(ctx, trade); err != nil {
			o.logger.Warn(ctx, "trade publish failed", "id", trade.ID, "error", err)
		}
	}
	return trade, nil
}

// call invokes the adapter through the breaker with its own deadline. The
// call is detached from ctx so stopping the scheduler never aborts a trade
// in flight; a panic or a missed deadline counts as a failure.
func (o *Orchestrator) call(ctx context.Context, req domain.Request) (domain.Result, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ExecutionTimeout)
	defer cancel()

	return o.breaker.Execute(func() (domain.Result, error) {
		type outcome struct {
			res domain.Result
			err error
		}
		done := make(chan outcome, 1)

		go func() {
			var out outcome
			defer func() {
				if p := recover(); p != nil {
					out = outcome{err: apperror.New(apperror.CodeExecutionFailed,
						apperror.WithContext(fmt.Sprintf("adapter panic: %v", p)))}
				}
				done <- out
			}()
			out.res, out.err = o.adapter.Execute(callCtx, req)
		}()

		select {
		case out := <-done:
			if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
				return domain.Result{}, timeoutError(req, out.err)
			}
			return out.res, out.err
		case <-callCtx.Done():
			return domain.Result{}, timeoutError(req, callCtx.Err())
		}
	})
}

const reasonCircuitOpen = "circuit open"

func circuitOpenError(candidateID string) error {
	return apperror.New(apperror.CodeCircuitOpen,
		apperror.WithContext("candidate "+candidateID))
}

func timeoutError(req domain.Request, cause error) error {
	return apperror.New(apperror.CodeExecutionTimeout,
		apperror.WithCause(cause),
		apperror.WithContext("candidate "+req.CandidateID))
}

func (o *Orchestrator) transition(ctx context.Context, id string, from, to detection.Status, reason string) error {
	if err := o.registry.Transition(id, from, to, reason); err != nil {
		return err
	}
	if err := o.store.UpdateCandidateStatus(ctx, id, to, reason); err != nil {
		return apperror.New(apperror.CodePersistenceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("update candidate "+id))
	}
	return nil
}

func (o *Orchestrator) persistenceFailure(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	if apperror.HasCode(err, apperror.CodePersistenceUnavailable) {
		return err
	}
	return apperror.New(apperror.CodePersistenceUnavailable,
		apperror.WithCause(err),
		apperror.WithContext(op))
}

// ExpireStale moves overdue discovered and admitted candidates to expired,
// both in memory and in the store, and prunes old terminal entries.
func (o *Orchestrator) ExpireStale(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "execution.expire")
	defer span.End()

	now := o.now()
	ids := o.registry.ExpireDue(now)
	for _, id := range ids {
		if err := o.store.UpdateCandidateStatus(ctx, id, detection.StatusExpired, domain.ReasonExpired); err != nil {
			return len(ids), o.persistenceFailure(span, "expire candidate", err)
		}
	}
	swept, err := o.store.ExpireCandidates(ctx, now)
	if err != nil {
		return len(ids), o.persistenceFailure(span, "expire stored candidates", err)
	}
	o.registry.Prune(now.Add(-o.cfg.Retention))

	n := max(len(ids), swept)
	if n > 0 {
		o.logger.Debug(ctx, "expired stale candidates", "count", n)
	}
	return n, nil
}

// RecentPerformance rolls up trades completed within window.
func (o *Orchestrator) RecentPerformance(ctx context.Context, window time.Duration) (risk.Performance, error) {
	ctx, span := o.tracer.Start(ctx, "execution.performance")
	defer span.End()

	now := o.now()
	trades, err := o.store.LoadRecentTrades(ctx, now.Add(-window))
	if err != nil {
		return risk.Performance{}, o.persistenceFailure(span, "load recent trades", err)
	}

	outcomes := make([]risk.TradeOutcome, len(trades))
	for i, t := range trades {
		outcomes[i] = risk.TradeOutcome{Profit: t.ProfitRealized, Success: t.Succeeded(), At: t.CompletedAt}
	}
	return risk.Rollup(outcomes, window, now), nil
}

func venues(c *detection.Candidate) []string {
	if c.BuyVenue == c.SellVenue {
		return []string{c.BuyVenue}
	}
	return []string{c.BuyVenue, c.SellVenue}
}
