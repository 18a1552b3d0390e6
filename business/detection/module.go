// Package detection implements the opportunity detection bounded context.
package detection

import (
	"context"

	"github.com/fd1az/arbitrage-scanner/business/detection/app"
	detectionDI "github.com/fd1az/arbitrage-scanner/business/detection/di"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/monolith"
)

// Module implements the detection bounded context.
type Module struct{}

// RegisterServices registers the detector with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, detectionDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		instruments := sr.Get("instruments").(*instrument.Registry)

		dcfg, err := app.ConfigFrom(cfg.Detection)
		if err != nil {
			panic("invalid detection config: " + err.Error())
		}
		d, err := app.NewDetector(dcfg, instruments, log)
		if err != nil {
			panic("failed to create detector: " + err.Error())
		}
		return d
	})
	return nil
}

// Startup resolves the detector so configuration errors fail fast.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	d := detectionDI.GetDetector(mono.Services())
	mono.Logger().Info(ctx, "detection module started",
		"min_profit_pct", d.Policy().MinPct.String(),
		"triangular_cycles", len(mono.Config().Detection.TriangularCycles))
	return nil
}
