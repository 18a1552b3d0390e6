// Package main is the entry point for the multi-venue arbitrage scanner.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/arbitrage-scanner/business/detection"
	"github.com/fd1az/arbitrage-scanner/business/execution"
	execDI "github.com/fd1az/arbitrage-scanner/business/execution/di"
	"github.com/fd1az/arbitrage-scanner/business/marketdata"
	mdDI "github.com/fd1az/arbitrage-scanner/business/marketdata/di"
	"github.com/fd1az/arbitrage-scanner/business/risk"
	"github.com/fd1az/arbitrage-scanner/business/scanner"
	scannerDI "github.com/fd1az/arbitrage-scanner/business/scanner/di"
	"github.com/fd1az/arbitrage-scanner/internal/apm"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/health"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/metrics"
	"github.com/fd1az/arbitrage-scanner/internal/monolith"
	"github.com/fd1az/arbitrage-scanner/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs and cycle tables (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arbitrage-scanner %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for servers and debugging
	tuiMode := !*cliMode

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set TUI mode in config so modules pick the right reporter
	cfg.App.TUIMode = tuiMode

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		// The TUI owns the terminal
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting arbitrage scanner",
			"version", version,
			"environment", cfg.App.Environment,
		)
	}

	shutdownTelemetry, err := setupTelemetry(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	healthServer := health.NewServer(cfg.HTTP.HealthPort, version, log)
	healthServer.Start(ctx)
	defer healthServer.Stop(context.WithoutCancel(ctx))

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.WithoutCancel(ctx), "shutdown incomplete", "error", err)
		}
	}()

	// Modules in dependency order
	modules := []monolith.Module{
		&marketdata.Module{},
		&detection.Module{},
		&risk.Module{},
		&execution.Module{},
		&scanner.Module{}, // registers the risk notifier, so it must register before startup
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	startFunc := func() error {
		if err := mono.StartModules(ctx, modules...); err != nil {
			return fmt.Errorf("failed to start modules: %w", err)
		}
		registerHealthChecks(healthServer, mono.Services())
		return nil
	}

	if tuiMode {
		return runTUI(ctx, startFunc, func() ui.Control {
			return scannerDI.GetController(mono.Services())
		})
	}

	if err := startFunc(); err != nil {
		return err
	}
	log.Info(ctx, "all modules started",
		"control_port", cfg.HTTP.Port,
		"health_port", cfg.HTTP.HealthPort)

	<-ctx.Done()
	log.Info(context.WithoutCancel(ctx), "shutting down")
	return nil
}

// setupTelemetry installs tracing and Prometheus metrics when enabled and
// returns their shutdown.
func setupTelemetry(ctx context.Context, cfg config.TelemetryConfig, log logger.LoggerInterface) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	tp, err := apm.NewTraceProvider(ctx, apm.Config{
		Provider:    apm.Provider(cfg.TraceProvider),
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	mp, err := metrics.NewMetricProvider(ctx,
		metrics.WithServiceName(cfg.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{
			Provider: metrics.PrometheusProvider,
		}),
	)
	if err != nil {
		tp.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	port := cfg.PrometheusPort
	if port == 0 {
		port = 9090
	}
	prom := metrics.NewPrometheusServer(port, log)
	prom.Start(ctx)

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := prom.Stop(stopCtx); err != nil {
			log.Warn(stopCtx, "prometheus server shutdown", "error", err)
		}
		if err := mp.Shutdown(stopCtx); err != nil {
			log.Warn(stopCtx, "meter provider shutdown", "error", err)
		}
		if err := tp.Stop(); err != nil {
			log.Warn(stopCtx, "trace provider shutdown", "error", err)
		}
	}, nil
}

func registerHealthChecks(s *health.Server, sr di.ServiceRegistry) {
	md := mdDI.GetMarketDataService(sr)
	s.RegisterCheck("marketdata", func(context.Context) error {
		st := md.Status()
		switch {
		case !st.Connected:
			return fmt.Errorf("no venue connected")
		case st.Stale:
			return fmt.Errorf("stale since %s", st.LastUpdate.Format(time.RFC3339))
		}
		return nil
	})

	store := execDI.GetStore(sr)
	s.RegisterCheck("storage", func(ctx context.Context) error {
		_, err := store.LoadRecentTrades(ctx, time.Now())
		return err
	})

	s.RegisterCheck("scheduler", scanner.HealthCheck(scannerDI.GetScheduler(sr)))
}

func runTUI(ctx context.Context, startFunc func() error, control func() ui.Control) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Show the welcome screen immediately; modules start once it completes
	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		if err := startFunc(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}
		ui.Send(ui.ReadyMsg{Control: control()})

		<-ctx.Done()
		p.Quit()
		errCh <- nil
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
