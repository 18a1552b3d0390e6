// Package risk implements the risk engine bounded context.
package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	mdDI "github.com/fd1az/arbitrage-scanner/business/marketdata/di"
	"github.com/fd1az/arbitrage-scanner/business/risk/app"
	riskDI "github.com/fd1az/arbitrage-scanner/business/risk/di"
	"github.com/fd1az/arbitrage-scanner/business/risk/infra/ethereum"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/monolith"
)

// Module implements the risk bounded context.
type Module struct{}

// RegisterServices registers all risk services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.ConfigStore, func(sr di.ServiceRegistry) *app.ConfigStore {
		cfg := sr.Get("config").(*config.Config)

		rcfg, err := app.ConfigFrom(cfg.Risk)
		if err != nil {
			panic("invalid risk config: " + err.Error())
		}
		store, err := app.NewConfigStore(rcfg)
		if err != nil {
			panic("failed to create risk config store: " + err.Error())
		}
		return store
	})

	di.RegisterToken(c, riskDI.Tracker, func(sr di.ServiceRegistry) *app.Tracker {
		store := riskDI.GetConfigStore(sr)
		return app.NewTracker(store.Get().PortfolioBalance, time.Now)
	})

	di.RegisterToken(c, riskDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		log := sr.Get("logger").(logger.LoggerInterface)
		instruments := sr.Get("instruments").(*instrument.Registry)

		var opts []app.Option
		if sr.Has(riskDI.Notifier.Name()) {
			opts = append(opts, app.WithNotifier(di.GetToken(sr, riskDI.Notifier)))
		}

		e, err := app.NewEngine(riskDI.GetConfigStore(sr), riskDI.GetTracker(sr), instruments, log, opts...)
		if err != nil {
			panic("failed to create risk engine: " + err.Error())
		}
		return e
	})

	di.RegisterToken(c, riskDI.NetworkCostOracle, func(sr di.ServiceRegistry) *ethereum.Oracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if !cfg.Ethereum.Enabled {
			return nil
		}

		ocfg := ethereum.DefaultConfig(cfg.Ethereum.RPCURL)
		if cfg.Ethereum.GasLimit > 0 {
			ocfg.GasLimit = cfg.Ethereum.GasLimit
		}
		if cfg.Ethereum.CacheTTL > 0 {
			ocfg.CacheTTL = cfg.Ethereum.CacheTTL
		}
		if cfg.Ethereum.MaxGasPriceGwei > 0 {
			ocfg.MaxGasPrice = ethereum.GweiToWei(cfg.Ethereum.MaxGasPriceGwei)
		}
		if cfg.Ethereum.NativeSymbol != "" {
			sym, err := instrument.Parse(cfg.Ethereum.NativeSymbol)
			if err != nil {
				panic("invalid ethereum.native_symbol: " + err.Error())
			}
			ocfg.NativeSymbol = sym
		}
		ocfg.NativePrice = decimal.NewFromFloat(cfg.Ethereum.NativePrice)

		md := mdDI.GetMarketDataService(sr)
		prices := func(ctx context.Context, s instrument.Symbol) (decimal.Decimal, bool) {
			tickers, err := md.GetLatestTickers(ctx, []instrument.Symbol{s}, nil)
			if err != nil || len(tickers) == 0 {
				return decimal.Zero, false
			}
			return tickers[0].Mid(), true
		}

		o, err := ethereum.NewOracle(ocfg, prices, log)
		if err != nil {
			panic("failed to create network cost oracle: " + err.Error())
		}
		return o
	})

	return nil
}

// Startup evaluates the emergency limits once and connects the network
// cost oracle when enabled.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	engine := riskDI.GetEngine(mono.Services())
	engine.CheckEmergency(ctx)

	if oracle := riskDI.GetNetworkCostOracle(mono.Services()); oracle != nil {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := oracle.Connect(connectCtx); err != nil {
			log.Warn(ctx, "network cost oracle unavailable, using configured cost", "error", err)
		}
		mono.OnClose(oracle.Close)
	}

	cfg := engine.Config()
	log.Info(ctx, "risk module started",
		"balance", cfg.PortfolioBalance.String(),
		"max_daily_loss", cfg.MaxDailyLoss.String(),
		"max_position", cfg.MaxPositionSize.String())
	return nil
}
