package app

import (
	"context"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

// Controller is the outward control surface used by the HTTP API, the
// terminal monitor and the CLI.
type Controller struct {
	scheduler *Scheduler
	risk      RiskEngine
	logger    logger.LoggerInterface
}

func NewController(scheduler *Scheduler, riskEngine RiskEngine, log logger.LoggerInterface) *Controller {
	return &Controller{scheduler: scheduler, risk: riskEngine, logger: log}
}

// TriggerScan runs one cycle immediately and returns its candidates with
// their final statuses.
func (c *Controller) TriggerScan(ctx context.Context) ([]detection.Candidate, error) {
	report, err := c.Scan(ctx)
	return report.Candidates, err
}

// Scan is TriggerScan with the full cycle report.
func (c *Controller) Scan(ctx context.Context) (CycleReport, error) {
	c.logger.Info(ctx, "manual scan requested")
	return c.scheduler.Trigger(ctx)
}

func (c *Controller) GetStatus() Status { return c.scheduler.Status() }

// UpdateConfig applies a partial risk configuration. A rejected update
// leaves the prior configuration in effect and returns it with the error.
// The risk engine logs the outcome.
func (c *Controller) UpdateConfig(ctx context.Context, u risk.Update) (risk.Configuration, error) {
	return c.risk.UpdateConfig(ctx, u)
}

func (c *Controller) Config() risk.Configuration { return c.risk.Config() }

func (c *Controller) Start(ctx context.Context) error { return c.scheduler.Start(ctx) }

func (c *Controller) Stop(ctx context.Context) error { return c.scheduler.Stop(ctx) }

// SetPaused holds or releases new executions. Scanning continues.
func (c *Controller) SetPaused(ctx context.Context, paused bool) {
	c.risk.SetPaused(ctx, paused)
}

// TogglePause flips the operator hold and reports the new state.
func (c *Controller) TogglePause(ctx context.Context) bool {
	paused := !c.risk.Portfolio().Paused
	c.risk.SetPaused(ctx, paused)
	return paused
}
