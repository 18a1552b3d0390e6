package monolith

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-scanner/internal/config"
	"github.com/fd1az/arbitrage-scanner/internal/di"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

type recordingModule struct {
	name  string
	trail *[]string
}

func (m recordingModule) RegisterServices(c di.Container) error {
	*m.trail = append(*m.trail, "register:"+m.name)
	c.Register(m.name, m.name)
	return nil
}

func (m recordingModule) Startup(_ context.Context, mono Monolith) error {
	*m.trail = append(*m.trail, "start:"+m.name)
	mono.OnClose(func() error {
		*m.trail = append(*m.trail, "close:"+m.name)
		return nil
	})
	return nil
}

func TestMonolith_Lifecycle(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	mono, err := New(&config.Config{}, log)
	require.NoError(t, err)

	var trail []string
	a := recordingModule{name: "a", trail: &trail}
	b := recordingModule{name: "b", trail: &trail}

	require.NoError(t, mono.RegisterModules(a, b))
	require.NoError(t, mono.StartModules(context.Background(), a, b))
	require.NoError(t, mono.Close())

	assert.Equal(t, []string{
		"register:a", "register:b",
		"start:a", "start:b",
		"close:b", "close:a",
	}, trail)

	assert.True(t, mono.Services().Has("config"))
	assert.True(t, mono.Services().Has("instruments"))
	assert.Equal(t, "a", mono.Services().Get("a"))
	assert.NotNil(t, mono.Instruments())
}

func TestMonolith_CloseJoinsErrors(t *testing.T) {
	mono, err := New(&config.Config{}, logger.New(io.Discard, logger.LevelError, "test", nil))
	require.NoError(t, err)

	boom := errors.New("boom")
	mono.OnClose(func() error { return boom })
	mono.OnClose(func() error { return nil })

	assert.ErrorIs(t, mono.Close(), boom)
	assert.NoError(t, mono.Close())
}
