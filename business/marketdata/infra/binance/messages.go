// Package binance is the Binance spot market data feed: bookTicker over the
// combined WebSocket stream, 24h statistics over REST.
package binance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

// WSResponse is a WebSocket control response.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// StreamEvent is the combined-stream wrapper.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTickerEvent is the best bid/ask update.
// Stream: <symbol>@bookTicker
type BookTickerEvent struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (e *BookTickerEvent) ParseBidPrice() (decimal.Decimal, error) {
	return decimal.NewFromString(e.BidPrice)
}

func (e *BookTickerEvent) ParseAskPrice() (decimal.Decimal, error) {
	return decimal.NewFromString(e.AskPrice)
}

// Ticker24hr is one entry of GET /api/v3/ticker/24hr.
type Ticker24hr struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

// stats are the slow-moving fields merged into every bookTicker.
type stats struct {
	last        decimal.Decimal
	quoteVolume decimal.Decimal
	changePct   decimal.Decimal
	closeTime   time.Time
}

func (t *Ticker24hr) parse() (bid, ask decimal.Decimal, s stats, err error) {
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{t.BidPrice, &bid},
		{t.AskPrice, &ask},
		{t.LastPrice, &s.last},
		{t.QuoteVolume, &s.quoteVolume},
		{t.PriceChangePercent, &s.changePct},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return bid, ask, s, fmt.Errorf("%s: %w", t.Symbol, err)
		}
	}
	s.closeTime = time.UnixMilli(t.CloseTime)
	return bid, ask, s, nil
}

// BookTickerStream returns the stream name for a compact symbol.
func BookTickerStream(compact string) string {
	return strings.ToLower(compact) + "@bookTicker"
}

// BinanceAPIError is an error body returned by the REST API.
type BinanceAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *BinanceAPIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// binanceErrorHandler maps error responses to application errors. 429 and
// 418 are Binance's rate-limit and IP-ban responses.
func binanceErrorHandler(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}

	var cause error = fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	var apiErr BinanceAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		cause = &apiErr
	}

	code := apperror.CodeVenueAPIError
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
		code = apperror.CodeRateLimitExceeded
	}
	return apperror.New(code, apperror.WithCause(cause), apperror.WithContext("binance"))
}
