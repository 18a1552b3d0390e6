// Package di contains dependency injection tokens for the scanner context.
package di

import (
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/business/scanner/infra/httpapi"
	"github.com/fd1az/arbitrage-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Controller = di.NewToken[*app.Controller]("scanner.Controller")
	Scheduler  = di.NewToken[*app.Scheduler]("scanner.Scheduler")
)

// Private dependency tokens - internal to the scanner module
var (
	Pipeline   = di.NewToken[*app.Pipeline]("scanner.Pipeline")
	Reporter   = di.NewToken[app.Reporter]("scanner.Reporter")
	HTTPServer = di.NewToken[*httpapi.Server]("scanner.HTTPServer")
)

func GetController(c di.ServiceRegistry) *app.Controller {
	return di.GetToken(c, Controller)
}

func GetScheduler(c di.ServiceRegistry) *app.Scheduler {
	return di.GetToken(c, Scheduler)
}

func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}

func GetHTTPServer(c di.ServiceRegistry) *httpapi.Server {
	return di.GetToken(c, HTTPServer)
}
