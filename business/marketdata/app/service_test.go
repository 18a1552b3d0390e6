package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

type stubFeed struct {
	name      string
	venues    []domain.Venue
	startErr  error
	connected bool
	sink      Sink
	closed    bool
}

func (f *stubFeed) Name() string           { return f.name }
func (f *stubFeed) Venues() []domain.Venue { return f.venues }
func (f *stubFeed) Connected() bool        { return f.connected }
func (f *stubFeed) Close() error           { f.closed = true; return nil }

func (f *stubFeed) Start(_ context.Context, sink Sink) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.sink = sink
	f.connected = true
	return nil
}

func newTestService(t *testing.T, feeds ...Feed) (*Service, *time.Time) {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	svc, err := NewService(domain.NewBook(decimal.Zero), feeds, 10*time.Second, log)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func ticker(venue, sym string, bid, ask float64, ts time.Time) domain.Ticker {
	return domain.Ticker{
		Venue:     domain.Venue(venue),
		Symbol:    instrument.MustParse(sym),
		Bid:       decimal.NewFromFloat(bid),
		Ask:       decimal.NewFromFloat(ask),
		Last:      decimal.NewFromFloat(bid),
		Volume24h: decimal.NewFromInt(500_000),
		Timestamp: ts,
	}
}

func TestService_GetLatestTickersExcludesStale(t *testing.T) {
	feed := &stubFeed{name: "stub", venues: []domain.Venue{"binance", "kraken"}}
	svc, now := newTestService(t, feed)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))
	feed.sink(ctx, ticker("binance", "BTC/USDT", 100, 100.1, now.Add(-time.Second)))
	feed.sink(ctx, ticker("kraken", "BTC/USDT", 101, 101.2, now.Add(-time.Minute)))
	feed.sink(ctx, ticker("kraken", "ETH/USDT", 3000, 3001, now.Add(-time.Second)))

	got, err := svc.GetLatestTickers(ctx, []instrument.Symbol{instrument.MustParse("BTC/USDT")}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Venue("binance"), got[0].Venue)

	all, err := svc.GetLatestTickers(ctx, nil, []domain.Venue{"kraken"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ETH/USDT", all[0].Symbol.String())
}

func TestService_IngestDropsMalformed(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	svc.Ingest(ctx, ticker("binance", "BTC/USDT", 101, 100, *now))
	svc.Ingest(ctx, ticker("binance", "BTC/USDT", 0, 100, *now))
	assert.Equal(t, 0, svc.Book().Len())
}

func TestService_StartFailsOnlyWhenEveryFeedFails(t *testing.T) {
	bad := &stubFeed{name: "bad", startErr: errors.New("refused")}
	good := &stubFeed{name: "good", venues: []domain.Venue{"binance"}}

	svc, _ := newTestService(t, bad, good)
	assert.NoError(t, svc.Start(context.Background()))

	svc, _ = newTestService(t, bad)
	assert.Error(t, svc.Start(context.Background()))
}

func TestService_StatusAndClose(t *testing.T) {
	feed := &stubFeed{name: "stub", venues: []domain.Venue{"binance", "kraken"}}
	svc, now := newTestService(t, feed)
	ctx := context.Background()

	st := svc.Status()
	assert.False(t, st.Connected)
	assert.True(t, st.Stale)

	require.NoError(t, svc.Start(ctx))
	feed.sink(ctx, ticker("binance", "BTC/USDT", 100, 100.1, now.Add(-time.Second)))

	st = svc.Status()
	assert.True(t, st.Connected)
	assert.False(t, st.Stale)
	require.Len(t, st.Venues, 2)
	assert.Equal(t, domain.Venue("binance"), st.Venues[0].Venue)
	assert.False(t, st.Venues[0].Stale)
	assert.True(t, st.Venues[1].Stale)

	require.NoError(t, svc.Close())
	assert.True(t, feed.closed)
}

func TestService_GetLatestTickersHonoursCancellation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetLatestTickers(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
