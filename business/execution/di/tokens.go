// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/arbitrage-scanner/business/execution/app"
	"github.com/fd1az/arbitrage-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Orchestrator = di.NewToken[*app.Orchestrator]("execution.Orchestrator")
)

// Private dependency tokens - internal to the execution module
var (
	Store   = di.NewToken[app.Store]("execution.Store")
	Adapter = di.NewToken[app.Adapter]("execution.Adapter")
	// Claimer and Publisher resolve to nil when redis or kafka is disabled.
	Claimer   = di.NewToken[app.Claimer]("execution.Claimer")
	Publisher = di.NewToken[app.TradePublisher]("execution.Publisher")
)

func GetOrchestrator(c di.ServiceRegistry) *app.Orchestrator {
	return di.GetToken(c, Orchestrator)
}

func GetStore(c di.ServiceRegistry) app.Store {
	return di.GetToken(c, Store)
}

func GetAdapter(c di.ServiceRegistry) app.Adapter {
	return di.GetToken(c, Adapter)
}

func GetClaimer(c di.ServiceRegistry) app.Claimer {
	return di.GetToken(c, Claimer)
}

func GetPublisher(c di.ServiceRegistry) app.TradePublisher {
	return di.GetToken(c, Publisher)
}
