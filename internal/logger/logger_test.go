package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "scanner", func(context.Context) string { return "abc123" })

	log.Info(context.Background(), "scan finished", "cycle", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "scan finished", rec["msg"])
	assert.Equal(t, "scanner", rec["service"])
	assert.Equal(t, float64(7), rec["cycle"])
	assert.Equal(t, "abc123", rec["trace_id"])
	assert.Contains(t, rec["file"], "logger_test.go")
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "scanner", nil)

	log.Info(context.Background(), "ignored")
	log.Debug(context.Background(), "ignored")
	assert.Zero(t, buf.Len())

	log.Error(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLogger_NoTraceIDWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "scanner", nil)

	log.Debug(context.Background(), "no span")
	assert.NotContains(t, buf.String(), "trace_id")
}
