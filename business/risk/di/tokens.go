// Package di contains dependency injection tokens for the risk context.
package di

import (
	"github.com/fd1az/arbitrage-scanner/business/risk/app"
	"github.com/fd1az/arbitrage-scanner/business/risk/infra/ethereum"
	"github.com/fd1az/arbitrage-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine = di.NewToken[*app.Engine]("risk.Engine")
	// NetworkCostOracle resolves to nil when the ethereum section is disabled.
	NetworkCostOracle = di.NewToken[*ethereum.Oracle]("risk.NetworkCostOracle")
	// Notifier is optional; another module registers it to receive
	// emergency-stop transitions.
	Notifier = di.NewToken[app.Notifier]("risk.Notifier")
)

// Private dependency tokens - internal to the risk module
var (
	ConfigStore = di.NewToken[*app.ConfigStore]("risk.ConfigStore")
	Tracker     = di.NewToken[*app.Tracker]("risk.Tracker")
)

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetNetworkCostOracle(c di.ServiceRegistry) *ethereum.Oracle {
	return di.GetToken(c, NetworkCostOracle)
}

func GetConfigStore(c di.ServiceRegistry) *app.ConfigStore {
	return di.GetToken(c, ConfigStore)
}

func GetTracker(c di.ServiceRegistry) *app.Tracker {
	return di.GetToken(c, Tracker)
}
