// Package app contains the risk engine and the portfolio tracker.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const (
	tracerName = "risk"
	meterName  = "risk"
)

// Notifier is told when the emergency gate flips.
type Notifier interface {
	NotifyEmergency(ctx context.Context, e domain.Emergency) error
	NotifyResumed(ctx context.Context) error
}

type engineMetrics struct {
	assessments    metric.Int64Counter
	score          metric.Float64Histogram
	emergencyStops metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// Engine scores candidates against the live configuration and portfolio.
type Engine struct {
	store       *ConfigStore
	tracker     *Tracker
	instruments *instrument.Registry
	notifier    Notifier
	logger      logger.LoggerInterface

	tracer  trace.Tracer
	metrics *engineMetrics
}

func NewEngine(store *ConfigStore, tracker *Tracker, instruments *instrument.Registry, log logger.LoggerInterface, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:       store,
		tracker:     tracker,
		instruments: instruments,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.assessments, err = meter.Int64Counter(
		"risk_assessments_total",
		metric.WithDescription("Risk assessments by recommendation"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return err
	}

	e.metrics.score, err = meter.Float64Histogram(
		"risk_score",
		metric.WithDescription("Distribution of risk scores"),
	)
	if err != nil {
		return err
	}

	e.metrics.emergencyStops, err = meter.Int64Counter(
		"risk_emergency_stops_total",
		metric.WithDescription("Times the emergency gate closed"),
		metric.WithUnit("{stop}"),
	)
	return err
}

func (e *Engine) Config() domain.Configuration { return e.store.Get() }

func (e *Engine) Tracker() *Tracker { return e.tracker }

// Portfolio is a snapshot of the tracked portfolio.
func (e *Engine) Portfolio() domain.PortfolioState { return e.tracker.Snapshot() }

// UpdateConfig applies a partial update. On error the prior configuration
// stays in effect and is returned.
func (e *Engine) UpdateConfig(ctx context.Context, u domain.Update) (domain.Configuration, error) {
	cfg, err := e.store.Update(u)
	if err != nil {
		e.logger.Warn(ctx, "risk config update rejected", "error", err)
		return cfg, err
	}
	if u.PortfolioBalance != nil {
		e.tracker.SetBalance(cfg.PortfolioBalance)
	}
	e.logger.Info(ctx, "risk config updated")
	e.CheckEmergency(ctx)
	return cfg, nil
}

// Assess scores a single candidate against the current portfolio.
func (e *Engine) Assess(ctx context.Context, c *detection.Candidate) domain.Assessment {
	return e.assess(ctx, c, e.tracker.Snapshot(), e.store.Get())
}

// AssessBatch scores candidates against one consistent snapshot and records
// the batch mean as the aggregate risk.
func (e *Engine) AssessBatch(ctx context.Context, cs []detection.Candidate) ([]domain.Assessment, domain.PortfolioState) {
	ctx, span := e.tracer.Start(ctx, "risk.assess_batch",
		trace.WithAttributes(attribute.Int("candidates", len(cs))),
	)
	defer span.End()

	state := e.tracker.Snapshot()
	cfg := e.store.Get()

	out := make([]domain.Assessment, len(cs))
	total := 0.0
	for i := range cs {
		out[i] = e.assess(ctx, &cs[i], state, cfg)
		total += out[i].Score
	}
	if len(cs) > 0 {
		e.tracker.SetAggregateRisk(total / float64(len(cs)))
	}
	return out, state
}

func (e *Engine) assess(ctx context.Context, c *detection.Candidate, state domain.PortfolioState, cfg domain.Configuration) domain.Assessment {
	a := domain.Assess(c, state, cfg, e.instruments)

	e.metrics.assessments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", c.Strategy.String()),
		attribute.String("recommendation", string(a.Recommendation)),
	))
	e.metrics.score.Record(ctx, a.Score)

	e.logger.Debug(ctx, "candidate assessed",
		"id", c.ID,
		"score", a.Score,
		"recommendation", a.Recommendation,
		"size", a.PositionSize.StringFixed(2),
	)
	return a
}

// CheckEmergency evaluates the hard limits and flips the execution gate
// when the verdict changes. Clearing every condition re-enables execution.
func (e *Engine) CheckEmergency(ctx context.Context) domain.Emergency {
	ctx, span := e.tracer.Start(ctx, "risk.check_emergency")
	defer span.End()

	em := domain.CheckEmergency(e.tracker.Snapshot(), e.store.Get())
	span.SetAttributes(
		attribute.Bool("should_stop", em.ShouldStop),
		attribute.String("severity", string(em.Severity)),
	)

	if !e.tracker.SetEmergency(em) {
		if em.Severity == domain.SeverityWarning && !em.ShouldStop {
			e.logger.Warn(ctx, "risk warning", "reasons", strings.Join(em.Reasons, "; "))
		}
		return em
	}

	if em.ShouldStop {
		e.metrics.emergencyStops.Add(ctx, 1)
		e.logger.Error(ctx, "emergency stop engaged",
			"severity", em.Severity,
			"reasons", strings.Join(em.Reasons, "; "),
		)
		e.notify(ctx, func(n Notifier) error { return n.NotifyEmergency(ctx, em) })
	} else {
		e.logger.Info(ctx, "emergency stop cleared, execution re-enabled")
		e.notify(ctx, func(n Notifier) error { return n.NotifyResumed(ctx) })
	}
	return em
}

func (e *Engine) notify(ctx context.Context, fn func(Notifier) error) {
	if e.notifier == nil {
		return
	}
	if err := fn(e.notifier); err != nil {
		e.logger.Warn(ctx, "risk notification failed", "error", err)
	}
}

// ApplyPerformance refreshes daily figures from the persisted trade
// rollup and re-evaluates the emergency limits.
func (e *Engine) ApplyPerformance(ctx context.Context, p domain.Performance) domain.Emergency {
	e.tracker.ApplyPerformance(p)
	return e.CheckEmergency(ctx)
}

// SetPaused places or lifts the operator hold on new executions.
func (e *Engine) SetPaused(ctx context.Context, paused bool) {
	if !e.tracker.SetPaused(paused) {
		return
	}
	if paused {
		e.logger.Warn(ctx, "execution paused by operator")
		return
	}
	e.logger.Info(ctx, "execution resumed by operator")
}

// ObserveMarket records market-wide volatility and liquidity.
func (e *Engine) ObserveMarket(volatility, liquidity float64) {
	e.tracker.SetMarket(volatility, liquidity)
}

// Level names the current portfolio risk band.
func (e *Engine) Level() string {
	s := e.tracker.Snapshot()
	if s.Emergency.Severity == domain.SeverityCritical {
		return "critical"
	}
	return domain.Level(s.AggregateRisk, e.store.Get())
}
