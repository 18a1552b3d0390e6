package apperror

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesCatalogMessageAndStatus(t *testing.T) {
	err := New(CodeInvalidRiskConfig, WithContext("max_slippage_pct must be positive"))

	assert.Equal(t, "Risk configuration is invalid", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Contains(t, err.Error(), "INVALID_RISK_CONFIG")
	assert.Contains(t, err.Error(), "max_slippage_pct")
}

func TestNew_UnknownCodeFallsBack(t *testing.T) {
	err := New(Code("SOMETHING_ELSE"))
	assert.Equal(t, "SOMETHING_ELSE", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	base := New(CodePersistenceUnavailable, WithCause(errors.New("disk full")))
	wrapped := fmt.Errorf("save candidate: %w", base)

	assert.True(t, HasCode(wrapped, CodePersistenceUnavailable))
	assert.False(t, HasCode(wrapped, CodeExecutionFailed))
	assert.Equal(t, CodePersistenceUnavailable, GetCode(wrapped))
	assert.Equal(t, CodeUnknownError, GetCode(errors.New("plain")))
	assert.True(t, IsAppError(wrapped))
	assert.False(t, IsAppError(errors.New("plain")))
}

func TestWrap_KeepsExistingAppError(t *testing.T) {
	inner := New(CodeLockHeld)
	out := Wrap(inner, CodeInternalError, "claim")

	require.Same(t, inner, out)
	assert.Equal(t, "claim", out.Context)
	assert.Nil(t, Wrap(nil, CodeInternalError, "x"))
}

func TestWrap_PlainErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	out := Wrap(cause, CodeMarketDataUnavailable, "binance")

	assert.ErrorIs(t, out, cause)
	assert.Equal(t, CodeMarketDataUnavailable, out.Code)
}

func TestToResponse(t *testing.T) {
	resp := New(CodeSchedulerNotRunning, WithCause(errors.New("secret dsn"))).WithTraceID("t-1").ToResponse()

	assert.Equal(t, CodeSchedulerNotRunning, resp.Error.Code)
	assert.Equal(t, "t-1", resp.Error.TraceID)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"code":"SCHEDULER_NOT_RUNNING"`)
	assert.NotContains(t, string(raw), "secret dsn")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusOf(fmt.Errorf("scan: %w", New(CodeSchedulerNotRunning))))
	assert.Equal(t, http.StatusTeapot, StatusOf(New(CodeInternalError, WithStatusCode(http.StatusTeapot))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestLogValue(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	log.Info("failed", "error", New(CodePersistenceUnavailable, WithContext("trades"), WithCause(errors.New("locked"))))

	out := buf.String()
	assert.Contains(t, out, `"code":"PERSISTENCE_UNAVAILABLE"`)
	assert.Contains(t, out, `"cause":"locked"`)
	assert.Contains(t, out, `"stack":`)

	buf.Reset()
	log.Info("rejected", "error", New(CodeInvalidRiskConfig))
	assert.NotContains(t, buf.String(), `"stack":`)
}
