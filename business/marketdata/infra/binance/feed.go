package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-scanner/business/marketdata/app"
	"github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/httpclient"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
	"github.com/fd1az/arbitrage-scanner/internal/ratelimit"
	"github.com/fd1az/arbitrage-scanner/internal/wsconn"
)

const (
	tracerName = "binance"
	meterName  = "binance"

	// Venue is the venue name stamped on every ticker.
	Venue domain.Venue = "binance"

	BaseWSURL   = "wss://stream.binance.com:9443"
	BaseRESTURL = "https://api.binance.com"

	ticker24hrPath = "/api/v3/ticker/24hr"
)

// Config holds configuration for the Binance feed.
type Config struct {
	WSURL             string
	RESTURL           string
	Symbols           []instrument.Symbol
	PollInterval      time.Duration // 0 disables REST polling
	RequestsPerSecond float64
	RequestTimeout    time.Duration
}

// DefaultConfig returns production endpoints.
func DefaultConfig(symbols []instrument.Symbol) Config {
	return Config{
		WSURL:             BaseWSURL,
		RESTURL:           BaseRESTURL,
		Symbols:           symbols,
		PollInterval:      30 * time.Second,
		RequestsPerSecond: 5,
		RequestTimeout:    10 * time.Second,
	}
}

type feedMetrics struct {
	messagesReceived metric.Int64Counter
	parseErrors      metric.Int64Counter
	polls            metric.Int64Counter
}

// Feed streams Binance bookTicker updates and enriches them with 24h
// statistics polled over REST. While the stream is down the polled tickers
// are forwarded instead.
type Feed struct {
	config  Config
	logger  logger.LoggerInterface
	symbols map[string]instrument.Symbol // compact -> symbol
	rest    *httpclient.InstrumentedClient
	now     func() time.Time

	conn   *wsconn.Client
	connMu sync.RWMutex

	stats   map[string]stats
	statsMu sync.RWMutex

	sink    app.Sink
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	tracer  trace.Tracer
	metrics *feedMetrics
}

var _ app.Feed = (*Feed)(nil)

// NewFeed creates a Binance feed.
func NewFeed(cfg Config, log logger.LoggerInterface) (*Feed, error) {
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no symbols configured"))
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	f := &Feed{
		config:  cfg,
		logger:  log,
		symbols: make(map[string]instrument.Symbol, len(cfg.Symbols)),
		stats:   make(map[string]stats),
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	for _, s := range cfg.Symbols {
		f.symbols[s.Compact()] = s
	}

	rest, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(cfg.RESTURL),
		httpclient.WithRequestTimeout(cfg.RequestTimeout),
		httpclient.WithRateLimiter(ratelimit.New(cfg.RequestsPerSecond, 1)),
		httpclient.WithTraceOptions(f.tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	f.rest = rest

	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return f, nil
}

func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.messagesReceived, err = meter.Int64Counter(
		"binance_messages_total",
		metric.WithDescription("Total messages received"),
	)
	if err != nil {
		return err
	}

	f.metrics.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	if err != nil {
		return err
	}

	f.metrics.polls, err = meter.Int64Counter(
		"binance_ticker_polls_total",
		metric.WithDescription("24h ticker polls"),
	)
	return err
}

func (f *Feed) Name() string           { return "binance" }
func (f *Feed) Venues() []domain.Venue { return []domain.Venue{Venue} }

func (f *Feed) Connected() bool {
	f.connMu.RLock()
	defer f.connMu.RUnlock()
	return f.conn != nil && f.conn.IsConnected()
}

// Start connects the stream and starts polling in the background.
func (f *Feed) Start(ctx context.Context, sink app.Sink) error {
	if !f.started.CompareAndSwap(false, true) {
		return nil
	}

	wsURL, err := f.streamURL()
	if err != nil {
		return err
	}
	conn, err := wsconn.New(wsconn.DefaultConfig(wsURL, "binance"))
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}
	conn.OnMessage(f.handleMessage)
	conn.OnStateChange(func(state wsconn.State, err error) {
		f.logger.Info(context.Background(), "binance stream state", "state", state, "error", err)
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.sink = sink
	f.cancel = cancel
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := conn.ConnectWithRetry(runCtx); err != nil && runCtx.Err() == nil {
			f.logger.Error(runCtx, "binance stream gave up", "error", err)
		}
	}()

	if f.config.PollInterval > 0 {
		f.wg.Add(1)
		go f.pollLoop(runCtx)
	}

	f.logger.Info(ctx, "binance feed starting", "url", wsURL, "symbols", len(f.symbols))
	return nil
}

// streamURL builds /stream?streams=a@bookTicker/b@bookTicker.
func (f *Feed) streamURL() (string, error) {
	streams := make([]string, 0, len(f.config.Symbols))
	for _, s := range f.config.Symbols {
		streams = append(streams, BookTickerStream(s.Compact()))
	}

	u, err := url.Parse(f.config.WSURL)
	if err != nil {
		return "", apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (f *Feed) handleMessage(ctx context.Context, data []byte) {
	f.metrics.messagesReceived.Add(ctx, 1)

	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Stream == "" {
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
			return
		}
		f.metrics.parseErrors.Add(ctx, 1)
		f.logger.Debug(ctx, "failed to parse message", "data", string(data[:min(len(data), 200)]))
		return
	}
	if !strings.HasSuffix(event.Stream, "@bookTicker") {
		return
	}

	var bt BookTickerEvent
	if err := json.Unmarshal(event.Data, &bt); err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}

	t, ok := f.fromBookTicker(&bt)
	if !ok {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}
	f.sink(ctx, t)
}

func (f *Feed) fromBookTicker(e *BookTickerEvent) (domain.Ticker, bool) {
	sym, ok := f.symbols[e.Symbol]
	if !ok {
		return domain.Ticker{}, false
	}
	bid, err := e.ParseBidPrice()
	if err != nil {
		return domain.Ticker{}, false
	}
	ask, err := e.ParseAskPrice()
	if err != nil {
		return domain.Ticker{}, false
	}

	t := domain.Ticker{
		Venue:     Venue,
		Symbol:    sym,
		Bid:       bid,
		Ask:       ask,
		Timestamp: f.now(),
	}
	t.Last = t.Mid()

	f.statsMu.RLock()
	st, ok := f.stats[e.Symbol]
	f.statsMu.RUnlock()
	if ok {
		t.Last = st.last
		t.Volume24h = st.quoteVolume
		t.ChangePct = st.changePct
	}
	return t, true
}

func (f *Feed) pollLoop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := f.Poll(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn(ctx, "binance ticker poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches 24h statistics for every symbol. Tickers are forwarded to the
// sink only while the stream is disconnected.
func (f *Feed) Poll(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "binance.poll_24hr",
		trace.WithAttributes(attribute.Int("symbols", len(f.symbols))))
	defer span.End()

	tickers, err := f.Fetch24hr(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return err
	}

	forward := f.sink != nil && !f.Connected()
	for i := range tickers {
		tk := &tickers[i]
		sym, ok := f.symbols[tk.Symbol]
		if !ok {
			continue
		}
		bid, ask, st, err := tk.parse()
		if err != nil {
			f.metrics.parseErrors.Add(ctx, 1)
			continue
		}

		f.statsMu.Lock()
		f.stats[tk.Symbol] = st
		f.statsMu.Unlock()

		if forward {
			f.sink(ctx, domain.Ticker{
				Venue:     Venue,
				Symbol:    sym,
				Bid:       bid,
				Ask:       ask,
				Last:      st.last,
				Volume24h: st.quoteVolume,
				ChangePct: st.changePct,
				Timestamp: st.closeTime,
			})
		}
	}

	span.SetAttributes(attribute.Bool("forwarded", forward))
	return nil
}

// Fetch24hr calls GET /api/v3/ticker/24hr for the configured symbols.
func (f *Feed) Fetch24hr(ctx context.Context) ([]Ticker24hr, error) {
	f.metrics.polls.Add(ctx, 1)

	compact := make([]string, 0, len(f.config.Symbols))
	for _, s := range f.config.Symbols {
		compact = append(compact, s.Compact())
	}
	symbols, err := json.Marshal(compact)
	if err != nil {
		return nil, err
	}

	var result []Ticker24hr
	_, err = f.rest.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "ticker_24hr")),
		httpclient.WithResponseErrorHandler(binanceErrorHandler),
	).
		SetQueryParam("symbols", string(symbols)).
		SetResult(&result).
		Get(ctx, ticker24hrPath)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close stops the stream and the poller.
func (f *Feed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}

	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	f.wg.Wait()
	return err
}
