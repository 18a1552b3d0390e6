// Package marketdata implements the market data bounded context: venue feeds
// normalized into a latest-value ticker book.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/app"
	mdDI "github.com/fd1az/arbitrage-scanner/business/marketdata/di"
	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/marketdata/infra/binance"
	"github.com/fd1az/arbitrage-scanner/business/marketdata/infra/simulated"
	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/monolith"
)

// Module implements the market data bounded context.
type Module struct{}

// RegisterServices registers all market data services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mdDI.Feeds, func(sr di.ServiceRegistry) []app.Feed {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		feeds, err := buildFeeds(cfg, log)
		if err != nil {
			panic("failed to create market data feeds: " + err.Error())
		}
		return feeds
	})

	di.RegisterToken(c, mdDI.MarketDataService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		book := domain.NewBook(decimal.NewFromFloat(cfg.Detection.MaxPrice))
		svc, err := app.NewService(book, mdDI.GetFeeds(sr), cfg.MarketData.StaleTimeout, log)
		if err != nil {
			panic("failed to create market data service: " + err.Error())
		}
		return svc
	})

	return nil
}

func buildFeeds(cfg *config.Config, log logger.LoggerInterface) ([]app.Feed, error) {
	symbols, err := instrument.ParseAll(cfg.Scanner.Instruments)
	if err != nil {
		return nil, err
	}

	switch cfg.MarketData.Feed {
	case "binance":
		bcfg := binance.DefaultConfig(symbols)
		bcfg.WSURL = cfg.MarketData.BinanceWSURL
		bcfg.RESTURL = cfg.MarketData.BinanceRESTURL
		bcfg.PollInterval = cfg.MarketData.PollInterval
		bcfg.RequestsPerSecond = cfg.MarketData.RequestsPerSecond

		feed, err := binance.NewFeed(bcfg, log)
		if err != nil {
			return nil, err
		}
		return []app.Feed{feed}, nil

	case "simulated":
		venues := make([]domain.Venue, 0, len(cfg.MarketData.SimulatedVenues))
		for _, v := range cfg.MarketData.SimulatedVenues {
			venues = append(venues, domain.Venue(v))
		}
		gcfg := simulated.DefaultGeneratorConfig(venues, symbols, cfg.MarketData.SimulatedSeed)
		return []app.Feed{simulated.NewFeed(gcfg, cfg.MarketData.SimulatedTick, log)}, nil
	}
	return nil, fmt.Errorf("unknown feed %q", cfg.MarketData.Feed)
}

// Startup starts the feeds without blocking on connectivity.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := mdDI.GetMarketDataService(mono.Services())

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := svc.Start(startCtx); err != nil {
		log.Warn(ctx, "market data feeds failed to start, scans will find no tickers", "error", err)
	}
	mono.OnClose(svc.Close)

	log.Info(ctx, "marketdata module started", "feed", mono.Config().MarketData.Feed)
	return nil
}
