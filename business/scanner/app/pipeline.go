package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	execution "github.com/fd1az/arbitrage-scanner/business/execution/app"
	executionDomain "github.com/fd1az/arbitrage-scanner/business/execution/domain"
	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const (
	tracerName = "scanner"
	meterName  = "scanner"
)

// Outcome classifies a finished cycle so a quiet pipeline can be told
// apart from a rejecting or failing one.
type Outcome string

const (
	OutcomeNoMarketData  Outcome = "no_market_data"
	OutcomeNoCandidates  Outcome = "no_candidates"
	OutcomeAllRejected   Outcome = "all_rejected"
	OutcomeAdapterErrors Outcome = "adapter_errors"
	OutcomeExecuted      Outcome = "executed"
	OutcomeNotExecuted   Outcome = "not_executed" // admitted, but duplicates or claimed elsewhere
	OutcomeHalted        Outcome = "halted"
)

// CycleReport is everything one scan cycle saw and did.
type CycleReport struct {
	Cycle          int64                 `json:"cycle"`
	Manual         bool                  `json:"manual"`
	StartedAt      time.Time             `json:"started_at"`
	Duration       time.Duration         `json:"duration"`
	Tickers        int                   `json:"tickers"`
	SkippedTickers int                   `json:"skipped_tickers"`
	Discarded      int                   `json:"discarded"`
	NetworkCost    decimal.Decimal       `json:"network_cost"`
	Candidates     []detection.Candidate `json:"candidates"`
	Result         execution.CycleResult `json:"result"`
	Outcome        Outcome               `json:"outcome"`
	Error          string                `json:"error,omitempty"`
}

// PipelineConfig selects what a cycle scans. Empty slices mean everything
// the market data service holds.
type PipelineConfig struct {
	Symbols []instrument.Symbol
	Venues  []md.Venue
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithNetworkCost refreshes the detector's network cost before each cycle.
func WithNetworkCost(src NetworkCostSource) PipelineOption {
	return func(p *Pipeline) { p.cost = src }
}

// WithPipelineClock replaces time.Now.
func WithPipelineClock(fn func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = fn }
}

// Pipeline runs one scan cycle: market data, detection, risk and
// execution, in that order.
type Pipeline struct {
	cfg      PipelineConfig
	market   MarketData
	detector Detector
	cost     NetworkCostSource
	risk     RiskEngine
	executor Executor
	logger   logger.LoggerInterface
	now      func() time.Time
	tracer   trace.Tracer
}

func NewPipeline(cfg PipelineConfig, market MarketData, detector Detector, riskEngine RiskEngine, executor Executor, log logger.LoggerInterface, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		market:   market,
		detector: detector,
		risk:     riskEngine,
		executor: executor,
		logger:   log,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MarketStatus reports market data connectivity.
func (p *Pipeline) MarketStatus() md.Status { return p.market.Status() }

// RunCycle runs cycle number n. Market data and adapter trouble degrade the
// report; only a persistence failure is returned as an error.
func (p *Pipeline) RunCycle(ctx context.Context, n int64) (CycleReport, error) {
	ctx, span := p.tracer.Start(ctx, "scanner.cycle",
		trace.WithAttributes(attribute.Int64("cycle", n)),
	)
	defer span.End()

	start := p.now()
	report := CycleReport{Cycle: n, StartedAt: start}

	// Losses booked since the last cycle must close the gate before this
	// cycle's admissions read the portfolio.
	p.risk.CheckEmergency(ctx)

	tickers, err := p.market.GetLatestTickers(ctx, p.cfg.Symbols, p.cfg.Venues)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn(ctx, "market data unavailable", "cycle", n, "error", err)
		tickers = nil
	}
	report.Tickers = len(tickers)
	if len(tickers) == 0 {
		report.Outcome = OutcomeNoMarketData
		report.Duration = p.now().Sub(start)
		return report, nil
	}

	report.NetworkCost = p.refreshNetworkCost(ctx)

	det := p.detector.DetectWithReport(ctx, tickers)
	report.SkippedTickers = det.Skipped
	report.Discarded = det.Discarded
	p.observeMarket(tickers, det.Candidates)

	res, err := p.executor.Process(ctx, det.Candidates)
	report.Result = res
	report.Candidates = settle(det.Candidates, res)
	report.Duration = p.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle halted")
		report.Outcome = OutcomeHalted
		report.Error = err.Error()
		return report, err
	}

	report.Outcome = classify(res)
	span.SetAttributes(
		attribute.Int("tickers", report.Tickers),
		attribute.Int("candidates", len(report.Candidates)),
		attribute.String("outcome", string(report.Outcome)),
	)
	return report, nil
}

// refreshNetworkCost keeps the last good quote when the source fails.
func (p *Pipeline) refreshNetworkCost(ctx context.Context) decimal.Decimal {
	if p.cost == nil {
		return decimal.Zero
	}
	cost, err := p.cost.NetworkCost(ctx)
	if err != nil {
		p.logger.Warn(ctx, "network cost unavailable, keeping previous quote", "error", err)
		return decimal.Zero
	}
	p.detector.SetNetworkCost(cost)
	return cost
}

func (p *Pipeline) observeMarket(tickers []md.Ticker, candidates []detection.Candidate) {
	changes := make([]decimal.Decimal, 0, len(tickers))
	for _, t := range tickers {
		changes = append(changes, t.ChangePct)
	}

	liquidity := p.risk.Portfolio().LiquidityIndex
	if len(candidates) > 0 {
		scores := make([]float64, len(candidates))
		for i, c := range candidates {
			scores[i] = c.LiquidityScore
		}
		liquidity = risk.LiquidityIndex(scores)
	}
	p.risk.ObserveMarket(risk.VolatilityIndex(changes), liquidity)
}

func classify(res execution.CycleResult) Outcome {
	switch {
	case res.Detected == 0:
		return OutcomeNoCandidates
	case res.AdapterErrors > 0 || res.CircuitOpen > 0:
		return OutcomeAdapterErrors
	case res.Executed > 0:
		return OutcomeExecuted
	case res.Admitted == 0 && res.Rejected+res.Expired > 0:
		return OutcomeAllRejected
	default:
		return OutcomeNotExecuted
	}
}

// settle copies the gate and execution verdicts onto the candidates.
func settle(candidates []detection.Candidate, res execution.CycleResult) []detection.Candidate {
	if len(candidates) == 0 {
		return nil
	}
	status := make(map[string]detection.Status, len(res.Decisions)+len(res.Trades))
	for _, d := range res.Decisions {
		switch {
		case d.Admitted:
			status[d.CandidateID] = detection.StatusAdmitted
		case d.Reason == executionDomain.ReasonExpired:
			status[d.CandidateID] = detection.StatusExpired
		default:
			status[d.CandidateID] = detection.StatusRejected
		}
	}
	for _, t := range res.Trades {
		status[t.CandidateID] = t.Status
	}

	out := make([]detection.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		if s, ok := status[out[i].ID]; ok {
			out[i].Status = s
		}
	}
	return out
}
