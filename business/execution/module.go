// Package execution implements the execution gate and orchestrator bounded
// context.
package execution

import (
	"context"
	"time"

	detectionDI "github.com/fd1az/arbitrage-scanner/business/detection/di"
	"github.com/fd1az/arbitrage-scanner/business/execution/app"
	execDI "github.com/fd1az/arbitrage-scanner/business/execution/di"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/kafka"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/memory"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/postgres"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/redislock"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/rest"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/simulated"
	"github.com/fd1az/arbitrage-scanner/business/execution/infra/sqlite"
	riskDI "github.com/fd1az/arbitrage-scanner/business/risk/di"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/monolith"
)

const connectTimeout = 10 * time.Second

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, execDI.Store, func(sr di.ServiceRegistry) app.Store {
		cfg := sr.Get("config").(*config.Config)

		switch cfg.Storage.Driver {
		case "memory":
			return memory.NewStore()
		case "postgres":
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			s, err := postgres.Connect(ctx, cfg.Storage.DSN, 0)
			if err != nil {
				panic("failed to open postgres store: " + err.Error())
			}
			return s
		default:
			s, err := sqlite.Open(cfg.Storage.Path)
			if err != nil {
				panic("failed to open sqlite store: " + err.Error())
			}
			return s
		}
	})

	di.RegisterToken(c, execDI.Adapter, func(sr di.ServiceRegistry) app.Adapter {
		cfg := sr.Get("config").(*config.Config)
		ec := cfg.Execution

		if ec.Adapter == "rest" {
			a, err := rest.New(rest.Config{
				BaseURL:           ec.GatewayURL,
				APIKey:            ec.APIKey,
				RequestsPerSecond: ec.RequestsPerSecond,
				Timeout:           cfg.Scanner.ExecutionTimeout,
			})
			if err != nil {
				panic("failed to create rest adapter: " + err.Error())
			}
			return a
		}
		return simulated.New(simulated.Config{
			Latency:     ec.Latency,
			SlippagePct: ec.SlippagePct,
			FailureRate: ec.FailureRate,
			Seed:        ec.Seed,
		})
	})

	di.RegisterToken(c, execDI.Claimer, func(sr di.ServiceRegistry) app.Claimer {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Redis.Enabled {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		cl, err := redislock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL)
		if err != nil {
			panic("failed to connect redis claimer: " + err.Error())
		}
		return cl
	})

	di.RegisterToken(c, execDI.Publisher, func(sr di.ServiceRegistry) app.TradePublisher {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Kafka.Enabled {
			return nil
		}
		return kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	})

	di.RegisterToken(c, execDI.Orchestrator, func(sr di.ServiceRegistry) *app.Orchestrator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		engine := riskDI.GetEngine(sr)

		var opts []app.Option
		if cl := execDI.GetClaimer(sr); cl != nil {
			opts = append(opts, app.WithClaimer(cl))
		}
		if pub := execDI.GetPublisher(sr); pub != nil {
			opts = append(opts, app.WithPublisher(pub))
		}

		o, err := app.NewOrchestrator(app.Config{
			BatchSize:        cfg.Scanner.BatchSize,
			ExecutionTimeout: cfg.Scanner.ExecutionTimeout,
			Policy:           detectionDI.GetDetector(sr).Policy(),
			Retention:        cfg.Scanner.PerformanceWindow,
		},
			execDI.GetAdapter(sr),
			execDI.GetStore(sr),
			engine,
			engine.Tracker(),
			log,
			opts...,
		)
		if err != nil {
			panic("failed to create orchestrator: " + err.Error())
		}
		return o
	})

	return nil
}

// Startup resolves the orchestrator, which opens the store, and registers
// shutdown hooks.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()
	cfg := mono.Config()
	log := mono.Logger()

	execDI.GetOrchestrator(sr)

	mono.OnClose(execDI.GetStore(sr).Close)
	if pub := execDI.GetPublisher(sr); pub != nil {
		mono.OnClose(pub.Close)
	}
	if cl, ok := execDI.GetClaimer(sr).(interface{ Close() error }); ok {
		mono.OnClose(cl.Close)
	}

	log.Info(ctx, "execution module started",
		"adapter", execDI.GetAdapter(sr).Name(),
		"storage", cfg.Storage.Driver,
		"batch_size", cfg.Scanner.BatchSize,
		"claims", cfg.Redis.Enabled,
		"publish", cfg.Kafka.Enabled)
	return nil
}
