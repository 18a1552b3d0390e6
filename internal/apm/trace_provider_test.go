package apm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

type mockLogger struct{ warned bool }

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)             {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)              { m.warned = true }
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)             {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func TestNewTraceProvider_Empty(t *testing.T) {
	log := &mockLogger{}
	tp, err := NewTraceProvider(context.Background(), Config{Provider: EmptyProvider}, log)
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
	assert.False(t, log.warned)
}

func TestNewTraceProvider_UnknownWarns(t *testing.T) {
	log := &mockLogger{}
	tp, err := NewTraceProvider(context.Background(), Config{Provider: "jaeger"}, log)
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
	assert.True(t, log.warned)
}

func TestNewTraceProvider_Zipkin(t *testing.T) {
	tp, err := NewTraceProvider(context.Background(), Config{
		Provider:    ZipkinProvider,
		ServiceName: "arbitrage-scanner",
		Endpoint:    "http://127.0.0.1:9411/api/v2/spans",
	}, &mockLogger{})
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
}
