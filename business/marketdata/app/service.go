// Package app contains the market data application service.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const (
	tracerName = "marketdata"
	meterName  = "marketdata"
)

type serviceMetrics struct {
	ingested metric.Int64Counter
	rejected metric.Int64Counter
	served   metric.Int64Histogram
}

// Service owns the ticker book and the feeds that fill it.
type Service struct {
	book       *domain.Book
	feeds      []Feed
	staleAfter time.Duration
	logger     logger.LoggerInterface
	now        func() time.Time

	tracer  trace.Tracer
	metrics *serviceMetrics
}

// NewService creates a Service. A non-positive staleAfter disables
// staleness filtering.
func NewService(book *domain.Book, feeds []Feed, staleAfter time.Duration, log logger.LoggerInterface) (*Service, error) {
	s := &Service{
		book:       book,
		feeds:      feeds,
		staleAfter: staleAfter,
		logger:     log,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &serviceMetrics{}

	s.metrics.ingested, err = meter.Int64Counter(
		"marketdata_tickers_ingested_total",
		metric.WithDescription("Tickers accepted into the book"),
		metric.WithUnit("{ticker}"),
	)
	if err != nil {
		return err
	}

	s.metrics.rejected, err = meter.Int64Counter(
		"marketdata_tickers_rejected_total",
		metric.WithDescription("Tickers rejected as malformed or out of order"),
		metric.WithUnit("{ticker}"),
	)
	if err != nil {
		return err
	}

	s.metrics.served, err = meter.Int64Histogram(
		"marketdata_snapshot_size",
		metric.WithDescription("Tickers returned per snapshot"),
		metric.WithUnit("{ticker}"),
	)
	return err
}

// Start starts every feed. A feed that fails to start is logged and left to
// its own reconnect logic; Start only fails when no feed starts.
func (s *Service) Start(ctx context.Context) error {
	var errs []error
	for _, f := range s.feeds {
		if err := f.Start(ctx, s.Ingest); err != nil {
			s.logger.Warn(ctx, "feed start failed", "feed", f.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		s.logger.Info(ctx, "feed started", "feed", f.Name(), "venues", f.Venues())
	}
	if len(s.feeds) > 0 && len(errs) == len(s.feeds) {
		return errors.Join(errs...)
	}
	return nil
}

// Ingest validates t and stores it when it supersedes the current value.
func (s *Service) Ingest(ctx context.Context, t domain.Ticker) {
	attrs := metric.WithAttributes(attribute.String("venue", t.Venue.String()))
	if err := s.book.Put(t); err != nil {
		s.metrics.rejected.Add(ctx, 1, attrs)
		s.logger.Debug(ctx, "ticker rejected", "key", t.Key().String(), "error", err)
		return
	}
	s.metrics.ingested.Add(ctx, 1, attrs)
}

// GetLatestTickers returns the freshest ticker per (venue, symbol) for the
// requested symbols and venues. Stale tickers are excluded, so a dead feed
// yields an empty slice rather than an error.
func (s *Service) GetLatestTickers(ctx context.Context, symbols []instrument.Symbol, venues []domain.Venue) ([]domain.Ticker, error) {
	ctx, span := s.tracer.Start(ctx, "marketdata.get_latest_tickers",
		trace.WithAttributes(
			attribute.Int("symbols", len(symbols)),
			attribute.Int("venues", len(venues)),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	f := domain.Filter{Symbols: symbols, Venues: venues}
	if s.staleAfter > 0 {
		f.NotBefore = s.now().Add(-s.staleAfter)
	}

	out := s.book.Snapshot(f)
	s.metrics.served.Record(ctx, int64(len(out)))
	span.SetAttributes(attribute.Int("tickers", len(out)))
	return out, nil
}

// Status reports connectivity per venue.
func (s *Service) Status() domain.Status {
	now := s.now()
	updates := s.book.VenueUpdates()

	connected := make(map[domain.Venue]bool)
	for _, f := range s.feeds {
		for _, v := range f.Venues() {
			connected[v] = connected[v] || f.Connected()
		}
	}
	for v := range updates {
		if _, ok := connected[v]; !ok {
			connected[v] = false
		}
	}

	st := domain.Status{LastUpdate: s.book.LastUpdate()}
	st.Stale = s.isStale(now, st.LastUpdate)

	for v, conn := range connected {
		vs := domain.VenueStatus{
			Venue:      v,
			Connected:  conn,
			LastUpdate: updates[v],
		}
		vs.Stale = s.isStale(now, vs.LastUpdate)
		st.Connected = st.Connected || conn
		st.Venues = append(st.Venues, vs)
	}
	slices.SortFunc(st.Venues, func(a, b domain.VenueStatus) int {
		return strings.Compare(string(a.Venue), string(b.Venue))
	})
	return st
}

func (s *Service) isStale(now, last time.Time) bool {
	if last.IsZero() {
		return true
	}
	return s.staleAfter > 0 && now.Sub(last) > s.staleAfter
}

// Book exposes the underlying book for read-only consumers.
func (s *Service) Book() *domain.Book { return s.book }

// Close stops every feed.
func (s *Service) Close() error {
	var errs []error
	for _, f := range s.feeds {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}
