// Package di contains dependency injection tokens for the market data context.
package di

import (
	"github.com/fd1az/arbitrage-scanner/business/marketdata/app"
	"github.com/fd1az/arbitrage-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	MarketDataService = di.NewToken[*app.Service]("marketdata.Service")
)

// Private dependency tokens - internal to the market data module
var (
	Feeds = di.NewToken[[]app.Feed]("marketdata:feeds")
)

func GetMarketDataService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, MarketDataService)
}

func GetFeeds(c di.ServiceRegistry) []app.Feed {
	return di.GetToken(c, Feeds)
}
