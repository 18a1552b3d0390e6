package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
)

func newAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a, err := New(Config{BaseURL: srv.URL, APIKey: "k-1", RequestsPerSecond: 100})
	require.NoError(t, err)
	return a
}

func request() domain.Request {
	return domain.Request{
		CandidateID: "cand-7",
		Strategy:    detection.StrategyDirect,
		Symbol:      instrument.MustParse("ETH/USDT"),
		Side:        detection.SideBuy,
		Amount:      decimal.RequireFromString("0.5"),
		BuyVenue:    "binance",
		BuyPrice:    decimal.NewFromInt(3000),
		SellVenue:   "kraken",
		SellPrice:   decimal.NewFromInt(3020),
	}
}

func TestAdapter_Filled(t *testing.T) {
	var got map[string]any
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "k-1", r.Header.Get("X-API-Key"))
		assert.Equal(t, "cand-7", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"filled","order_id":"o-1","filled_amount":"0.5","realized_profit":"8.75"}`))
	})

	res, err := a.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "o-1", res.ExternalRef)
	assert.Equal(t, "0.5", res.RealizedAmount.String())
	assert.Equal(t, "8.75", res.RealizedProfit.String())

	assert.Equal(t, "cand-7", got["client_order_id"])
	assert.Equal(t, "direct", got["strategy"])
	assert.Equal(t, "0.5", got["amount"])
}

func TestAdapter_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"rejected status", http.StatusOK, `{"status":"rejected","order_id":"o-2","error":"insufficient balance"}`, "insufficient balance"},
		{"client error", http.StatusBadRequest, `{"error":"bad amount"}`, "bad amount"},
		{"client error without body", http.StatusUnprocessableEntity, ``, "HTTP 422"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := a.Execute(context.Background(), request())
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.wantMsg)
		})
	}
}

func TestAdapter_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   apperror.Code
	}{
		{"server error", http.StatusBadGateway, apperror.CodeVenueAPIError},
		{"rate limited", http.StatusTooManyRequests, apperror.CodeRateLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := a.Execute(context.Background(), request())
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code))
		})
	}
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigurationError))
}
