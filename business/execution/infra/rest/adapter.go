// Package rest places trades through an HTTP order gateway.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/httpclient"
	"github.com/fd1az/arbitrage-scanner/internal/ratelimit"
)

const (
	tracerName = "execution.rest"
	ordersPath = "/orders"
)

// Config configures the gateway client.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type orderResponse struct {
	Status         string          `json:"status"` // filled | rejected
	OrderID        string          `json:"order_id"`
	FilledAmount   decimal.Decimal `json:"filled_amount"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	Error          string          `json:"error,omitempty"`
}

// Adapter posts one order per request. The candidate id doubles as the
// idempotency key so a gateway can drop replays.
type Adapter struct {
	client *httpclient.InstrumentedClient
	tracer trace.Tracer
}

func New(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("rest adapter requires a gateway url"))
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	a := &Adapter{tracer: otel.Tracer(tracerName)}
	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("order-gateway"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithRateLimiter(ratelimit.New(cfg.RequestsPerSecond, 1)),
		httpclient.WithTraceOptions(a.tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, err
	}
	a.client = client
	return a, nil
}

func (a *Adapter) Name() string { return "rest" }

func (a *Adapter) Execute(ctx context.Context, req domain.Request) (domain.Result, error) {
	var out orderResponse
	resp, err := a.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "orders")),
		httpclient.WithResponseErrorHandler(gatewayErrorHandler),
	).
		SetHeader("Idempotency-Key", req.CandidateID).
		SetBody(req).
		SetResult(&out).
		Post(ctx, ordersPath)
	if err != nil {
		return domain.Result{}, err
	}

	// 4xx other than 429 is a venue-side rejection with a readable body
	if resp.IsError() {
		_ = json.Unmarshal(resp.Body(), &out)
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("gateway rejected order: HTTP %d", resp.StatusCode)
		}
		return domain.Result{ExternalRef: out.OrderID, Error: msg}, nil
	}

	if out.Status != "filled" {
		msg := out.Error
		if msg == "" {
			msg = "order " + out.Status
		}
		return domain.Result{ExternalRef: out.OrderID, Error: msg}, nil
	}
	return domain.Result{
		Success:        true,
		ExternalRef:    out.OrderID,
		RealizedAmount: out.FilledAmount,
		RealizedProfit: out.RealizedProfit,
	}, nil
}

func gatewayErrorHandler(statusCode int, body []byte) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithCause(fmt.Errorf("HTTP %d: %s", statusCode, body)),
			apperror.WithContext("order gateway"))
	case statusCode >= 500:
		return apperror.New(apperror.CodeVenueAPIError,
			apperror.WithCause(fmt.Errorf("HTTP %d: %s", statusCode, body)),
			apperror.WithContext("order gateway"))
	}
	return nil
}
