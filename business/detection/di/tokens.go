// Package di contains dependency injection tokens for the detection context.
package di

import (
	"github.com/fd1az/arbitrage-scanner/business/detection/app"
	"github.com/fd1az/arbitrage-scanner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("detection.Detector")
)

func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}
