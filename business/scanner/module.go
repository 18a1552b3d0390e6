// Package scanner implements the scan scheduler and control surface bounded
// context.
package scanner

import (
	"context"
	"errors"
	"time"

	detectionDI "github.com/fd1az/arbitrage-scanner/business/detection/di"
	executionDI "github.com/fd1az/arbitrage-scanner/business/execution/di"
	mdDI "github.com/fd1az/arbitrage-scanner/business/marketdata/di"
	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	riskApp "github.com/fd1az/arbitrage-scanner/business/risk/app"
	riskDI "github.com/fd1az/arbitrage-scanner/business/risk/di"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	scannerDI "github.com/fd1az/arbitrage-scanner/business/scanner/di"
	"github.com/fd1az/arbitrage-scanner/business/scanner/infra/console"
	"github.com/fd1az/arbitrage-scanner/business/scanner/infra/httpapi"
	"github.com/fd1az/arbitrage-scanner/business/scanner/infra/telegram"
	"github.com/fd1az/arbitrage-scanner/business/scanner/infra/tui"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/monolith"
)

const shutdownTimeout = 5 * time.Second

// Module implements the scanner bounded context.
type Module struct{}

// RegisterServices registers all scanner services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.Notifier, func(sr di.ServiceRegistry) riskApp.Notifier {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if !cfg.Telegram.Enabled {
			return nil
		}

		n, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			APIEndpoint: cfg.Telegram.APIEndpoint,
		}, log)
		if err != nil {
			log.Warn(context.Background(), "telegram alerts disabled", "error", err)
			return nil
		}
		return n
	})

	di.RegisterToken(c, scannerDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		symbols, err := instrument.ParseAll(cfg.Scanner.Instruments)
		if err != nil {
			panic("invalid scanner.instruments: " + err.Error())
		}
		venues := make([]md.Venue, 0, len(cfg.Scanner.Venues))
		for _, v := range cfg.Scanner.Venues {
			venues = append(venues, md.Venue(v))
		}

		var opts []app.PipelineOption
		if oracle := riskDI.GetNetworkCostOracle(sr); oracle != nil {
			opts = append(opts, app.WithNetworkCost(oracle))
		}

		return app.NewPipeline(
			app.PipelineConfig{Symbols: symbols, Venues: venues},
			mdDI.GetMarketDataService(sr),
			detectionDI.GetDetector(sr),
			riskDI.GetEngine(sr),
			executionDI.GetOrchestrator(sr),
			log,
			opts...,
		)
	})

	di.RegisterToken(c, scannerDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		if cfg.App.TUIMode {
			return tui.NewReporter()
		}
		return console.NewReporter(false)
	})

	di.RegisterToken(c, scannerDI.Scheduler, func(sr di.ServiceRegistry) *app.Scheduler {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		sc := cfg.Scanner

		s, err := app.NewScheduler(app.SchedulerConfig{
			Interval:          sc.Interval,
			MaxConcurrent:     sc.MaxConcurrentScans,
			StopTimeout:       sc.StopTimeout,
			RollupInterval:    sc.RollupInterval,
			RiskCheckInterval: sc.RiskCheckInterval,
			ExpiryInterval:    sc.ExpiryInterval,
			PerformanceWindow: sc.PerformanceWindow,
		},
			scannerDI.GetPipeline(sr),
			riskDI.GetEngine(sr),
			executionDI.GetOrchestrator(sr),
			log,
			app.WithReporter(scannerDI.GetReporter(sr)),
		)
		if err != nil {
			panic("failed to create scheduler: " + err.Error())
		}
		return s
	})

	di.RegisterToken(c, scannerDI.Controller, func(sr di.ServiceRegistry) *app.Controller {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewController(scannerDI.GetScheduler(sr), riskDI.GetEngine(sr), log)
	})

	di.RegisterToken(c, scannerDI.HTTPServer, func(sr di.ServiceRegistry) *httpapi.Server {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.HTTP.Port <= 0 {
			return nil
		}
		return httpapi.NewServer(cfg.HTTP.Port, scannerDI.GetController(sr), log)
	})

	return nil
}

// Startup opens the control API and, when configured, starts scanning.
// Shutdown hooks run in reverse: the scheduler drains first, then the API
// and reporter close.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()
	cfg := mono.Config()
	log := mono.Logger()

	reporter := scannerDI.GetReporter(sr)
	if err := reporter.Start(ctx); err != nil {
		return err
	}
	mono.OnClose(reporter.Stop)

	if srv := scannerDI.GetHTTPServer(sr); srv != nil {
		srv.Start(ctx)
		mono.OnClose(func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(stopCtx)
		})
	}

	scheduler := scannerDI.GetScheduler(sr)
	mono.OnClose(func() error {
		// Stop bounds itself with StopTimeout.
		return scheduler.Stop(context.Background())
	})

	if cfg.Scanner.AutoStart {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
	}

	log.Info(ctx, "scanner module started",
		"instruments", len(cfg.Scanner.Instruments),
		"interval", cfg.Scanner.Interval,
		"auto_start", cfg.Scanner.AutoStart,
		"control_port", cfg.HTTP.Port,
		"telegram", cfg.Telegram.Enabled)
	return nil
}

// HealthCheck reports a halted or stopped scheduler.
func HealthCheck(s *app.Scheduler) func(context.Context) error {
	return func(context.Context) error {
		if err := s.Halted(); err != nil {
			return err
		}
		if !s.Running() {
			return errNotRunning
		}
		return nil
	}
}

var errNotRunning = errors.New("scheduler not running")
