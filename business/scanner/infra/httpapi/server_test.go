package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

type fakeControl struct {
	running   bool
	paused    bool
	cfg       risk.Configuration
	scanErr   error
	startErr  error
	updateErr error
	updates   []risk.Update
}

func (c *fakeControl) GetStatus() app.Status {
	return app.Status{
		Running:   c.running,
		Paused:    c.paused,
		RiskLevel: "medium",
		Stats:     app.Stats{CycleCount: 3, SuccessfulTrades: 2, TotalProfit: decimal.RequireFromString("8.4")},
	}
}

func (c *fakeControl) Scan(context.Context) (app.CycleReport, error) {
	if c.scanErr != nil {
		return app.CycleReport{}, c.scanErr
	}
	return app.CycleReport{
		Cycle:      4,
		Manual:     true,
		Outcome:    app.OutcomeAllRejected,
		Candidates: []detection.Candidate{{ID: "c1", Status: detection.StatusRejected}},
	}, nil
}

func (c *fakeControl) UpdateConfig(_ context.Context, u risk.Update) (risk.Configuration, error) {
	c.updates = append(c.updates, u)
	if c.updateErr != nil {
		return c.cfg, c.updateErr
	}
	if u.MaxSlippagePct != nil {
		c.cfg.MaxSlippagePct = *u.MaxSlippagePct
	}
	return c.cfg, nil
}

func (c *fakeControl) Config() risk.Configuration { return c.cfg }

func (c *fakeControl) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	return nil
}

func (c *fakeControl) Stop(context.Context) error {
	c.running = false
	return nil
}

func (c *fakeControl) SetPaused(_ context.Context, paused bool) { c.paused = paused }

func serve(t *testing.T, c *fakeControl) *httptest.Server {
	t.Helper()
	s := NewServer(0, c, logger.New(io.Discard, logger.LevelError, "test", nil))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestStatus(t *testing.T) {
	ts := serve(t, &fakeControl{running: true})

	resp, body := do(t, ts, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, float64(3), body["cycle_count"])
	assert.Equal(t, float64(2), body["successful_trades"])
	assert.Equal(t, "8.4", body["total_profit"])
	assert.Equal(t, "medium", body["risk_level"])
}

func TestScan(t *testing.T) {
	ts := serve(t, &fakeControl{})

	resp, body := do(t, ts, http.MethodPost, "/scan", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cands := body["candidates"].([]any)
	require.Len(t, cands, 1)
	assert.Equal(t, "c1", cands[0].(map[string]any)["id"])
	assert.Equal(t, "all_rejected", body["report"].(map[string]any)["outcome"])
}

func TestScan_Halted(t *testing.T) {
	ts := serve(t, &fakeControl{scanErr: apperror.New(apperror.CodeSchedulerNotRunning)})

	resp, body := do(t, ts, http.MethodPost, "/scan", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SCHEDULER_NOT_RUNNING", body["error"].(map[string]any)["code"])
}

func TestPatchConfig(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		c := &fakeControl{}
		ts := serve(t, c)

		resp, _ := do(t, ts, http.MethodPatch, "/config", `{"max_slippage_pct": 0.8}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, c.updates, 1)
		assert.InDelta(t, 0.8, c.cfg.MaxSlippagePct, 1e-9)
	})

	t.Run("rejected keeps prior", func(t *testing.T) {
		c := &fakeControl{
			cfg:       risk.Configuration{MaxSlippagePct: 0.5},
			updateErr: apperror.New(apperror.CodeInvalidRiskConfig, apperror.WithContext("max_daily_loss must be positive")),
		}
		ts := serve(t, c)

		resp, body := do(t, ts, http.MethodPatch, "/config", `{"max_daily_loss": "-1"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_RISK_CONFIG", body["error"].(map[string]any)["code"])
		assert.NotNil(t, body["config"])
	})

	t.Run("unknown field", func(t *testing.T) {
		c := &fakeControl{}
		ts := serve(t, c)

		resp, body := do(t, ts, http.MethodPatch, "/config", `{"disable_emergency_stop": true}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]any)["code"])
		assert.Empty(t, c.updates)
	})
}

func TestStartStopPause(t *testing.T) {
	c := &fakeControl{}
	ts := serve(t, c)

	_, body := do(t, ts, http.MethodPost, "/start", "")
	assert.Equal(t, true, body["running"])

	_, body = do(t, ts, http.MethodPost, "/pause", "")
	assert.Equal(t, true, body["paused"])
	_, body = do(t, ts, http.MethodPost, "/resume", "")
	assert.Equal(t, false, body["paused"])

	_, body = do(t, ts, http.MethodPost, "/stop", "")
	assert.Equal(t, false, body["running"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts := serve(t, &fakeControl{})

	resp, err := http.Post(ts.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
