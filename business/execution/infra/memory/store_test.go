package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
)

func TestStore_CandidateLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore()

	require.NoError(t, s.SaveCandidate(ctx, &detection.Candidate{ID: "a", ExpiresAt: now}))
	require.NoError(t, s.SaveCandidate(ctx, &detection.Candidate{ID: "b", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.UpdateCandidateStatus(ctx, "b", detection.StatusAdmitted, ""))

	n, err := s.ExpireCandidates(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, reason, ok := s.Candidate("a")
	require.True(t, ok)
	assert.Equal(t, detection.StatusExpired, c.Status)
	assert.Equal(t, "expired", reason)

	c, _, _ = s.Candidate("b")
	assert.Equal(t, detection.StatusAdmitted, c.Status)

	assert.Error(t, s.UpdateCandidateStatus(ctx, "missing", detection.StatusFailed, ""))
}

func TestStore_Trades(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore()

	old := domain.ExecutedTrade{ID: "t1", CandidateID: "c1", CompletedAt: now.Add(-2 * time.Hour)}
	recent := domain.ExecutedTrade{ID: "t2", CandidateID: "c2", CompletedAt: now, ProfitRealized: decimal.RequireFromString("1.5")}
	require.NoError(t, s.SaveExecutedTrade(ctx, &recent))
	require.NoError(t, s.SaveExecutedTrade(ctx, &old))

	assert.Error(t, s.SaveExecutedTrade(ctx, &domain.ExecutedTrade{ID: "t3", CandidateID: "c1"}))

	got, err := s.LoadRecentTrades(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].ID)
	assert.True(t, got[0].ProfitRealized.Equal(decimal.RequireFromString("1.5")))

	got, _ = s.LoadRecentTrades(ctx, time.Time{})
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
}
