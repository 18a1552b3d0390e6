package app

import (
	"context"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
)

// Sink receives normalized tickers from a feed.
type Sink func(ctx context.Context, t domain.Ticker)

// Feed pushes tickers for one or more venues into a Sink. Start must not
// block; feeds reconnect on their own.
type Feed interface {
	Name() string
	Venues() []domain.Venue
	Start(ctx context.Context, sink Sink) error
	Connected() bool
	Close() error
}
