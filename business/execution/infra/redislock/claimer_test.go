package redislock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) (*Claimer, *Claimer) {
	t.Helper()
	addr := os.Getenv("ARB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	a, err := Connect(ctx, addr, "", 0, 5*time.Second)
	require.NoError(t, err)
	b, err := Connect(ctx, addr, "", 0, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestClaimer_SingleHolder(t *testing.T) {
	a, b := connect(t)
	ctx := context.Background()
	id := uuid.NewString()

	ok, err := a.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "second process must not claim")

	// b never held it, so its release leaves a's claim intact
	require.NoError(t, b.Release(ctx, id))
	ok, _ = b.Claim(ctx, id)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, id))
	ok, err = b.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, id))
}
