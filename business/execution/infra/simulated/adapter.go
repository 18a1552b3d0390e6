// Package simulated fills execution requests against the candidate's own
// quotes with seeded latency, slippage and rejections.
package simulated

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
)

// Config shapes the simulated venue. Percentages are in percent units.
type Config struct {
	Latency     time.Duration // mean; each fill takes 0.5x..1.5x
	SlippagePct float64       // worst-case adverse move per leg
	FailureRate float64       // 0..1
	Seed        uint64
}

// Adapter is deterministic per (seed, candidate id), so replays of the same
// request produce the same fill. Safe for concurrent use.
type Adapter struct {
	cfg Config
}

func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return "simulated" }

func (a *Adapter) Execute(ctx context.Context, req domain.Request) (domain.Result, error) {
	h := hashID(req.CandidateID)
	rng := rand.New(rand.NewPCG(a.cfg.Seed, h))

	if a.cfg.Latency > 0 {
		wait := time.Duration(float64(a.cfg.Latency) * (0.5 + rng.Float64()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	ref := fmt.Sprintf("sim-%016x", h)
	if rng.Float64() < a.cfg.FailureRate {
		return domain.Result{ExternalRef: ref, Error: "simulated venue rejection"}, nil
	}

	slip := rng.Float64() * a.cfg.SlippagePct
	if req.MaxSlippagePct > 0 && slip > req.MaxSlippagePct {
		return domain.Result{
			ExternalRef: ref,
			Error:       fmt.Sprintf("slippage %.4f%% above limit %.4f%%", slip, req.MaxSlippagePct),
		}, nil
	}

	return domain.Result{
		Success:        true,
		ExternalRef:    ref,
		RealizedAmount: req.Amount,
		RealizedProfit: Fill(req, slip),
	}, nil
}

var hundred = decimal.NewFromInt(100)

// Fill is the profit of req when both legs move slipPct against us: buy
// higher, sell lower, less the proportional fee and the network cost.
func Fill(req domain.Request, slipPct float64) decimal.Decimal {
	s := decimal.NewFromFloat(slipPct).Div(hundred)
	buy := req.BuyPrice.Mul(decimal.NewFromInt(1).Add(s))
	sell := req.SellPrice.Mul(decimal.NewFromInt(1).Sub(s))

	units := routeUnits(req)
	gross := sell.Sub(buy).Mul(units)
	fee := req.BuyPrice.Mul(units).Mul(req.FeePct).Div(hundred)
	return gross.Sub(fee).Sub(req.NetworkCost).Round(domain.AmountPlaces)
}

// routeUnits is the quantity the buy and sell prices apply to. A
// triangular route is priced per unit of its start asset, so it trades
// its notional; the opening leg's amount is in a different asset.
func routeUnits(req domain.Request) decimal.Decimal {
	if req.Strategy == detection.StrategyTriangular {
		return req.Notional
	}
	return req.Amount
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}
