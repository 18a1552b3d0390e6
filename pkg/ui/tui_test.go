package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
)

type fakeControl struct {
	scans   int
	paused  bool
	scanErr error
}

func (c *fakeControl) GetStatus() app.Status {
	return app.Status{
		Running:   true,
		Paused:    c.paused,
		RiskLevel: "low",
		MarketData: md.Status{Venues: []md.VenueStatus{
			{Venue: "binance", Connected: true},
			{Venue: "kraken", Connected: true, Stale: true},
		}},
		Stats: app.Stats{CycleCount: 7},
	}
}

func (c *fakeControl) Scan(context.Context) (app.CycleReport, error) {
	c.scans++
	return app.CycleReport{Cycle: 8, Manual: true, Outcome: app.OutcomeNoCandidates}, c.scanErr
}

func (c *fakeControl) TogglePause(context.Context) bool {
	c.paused = !c.paused
	return c.paused
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func ready(t *testing.T, c Control) Model {
	t.Helper()
	clock := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	m := New()
	m.now = func() time.Time { return clock }

	next, cmd := m.Update(ReadyMsg{Control: c})
	require.NotNil(t, cmd)
	m = next.(Model)
	require.Equal(t, PhaseDashboard, m.phase)

	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestModel_ReadyPollsStatus(t *testing.T) {
	m := ready(t, &fakeControl{})

	assert.True(t, m.running)
	assert.Equal(t, int64(7), m.status.CycleCount)
	assert.Contains(t, m.View(), "Running")
	assert.Contains(t, m.View(), "stale")
}

func TestModel_ScanKey(t *testing.T) {
	c := &fakeControl{}
	m := ready(t, c)

	next, cmd := m.Update(keyMsg("s"))
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.True(t, m.scanning)

	// a second press while the scan runs is ignored
	_, again := m.Update(keyMsg("s"))
	assert.Nil(t, again)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.scanning)
	assert.Equal(t, 1, c.scans)
	assert.Contains(t, m.activityFeed[len(m.activityFeed)-1], "manual scan #8 finished: no_candidates")
}

func TestModel_ScanKeyError(t *testing.T) {
	m := ready(t, &fakeControl{scanErr: errors.New("scheduler halted")})

	_, cmd := m.Update(keyMsg("s"))
	next, _ := m.Update(cmd())
	m = next.(Model)

	require.Len(t, m.errors, 1)
	assert.Contains(t, m.errors[0].Message, "scheduler halted")
}

func TestModel_PauseKey(t *testing.T) {
	c := &fakeControl{}
	m := ready(t, c)

	_, cmd := m.Update(keyMsg("p"))
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.True(t, m.paused)
	assert.Contains(t, m.View(), "EXECUTION PAUSED")

	_, cmd = m.Update(keyMsg("p"))
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.paused)
}

func TestModel_QuitKey(t *testing.T) {
	m := New()

	next, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.True(t, next.(Model).quitting)
}

func TestModel_KeysBeforeReady(t *testing.T) {
	m := New()
	m.phase = PhaseDashboard

	_, cmd := m.Update(keyMsg("s"))
	assert.Nil(t, cmd)
	_, cmd = m.Update(keyMsg("p"))
	assert.Nil(t, cmd)
}

func TestModel_CycleAddsCandidates(t *testing.T) {
	m := ready(t, &fakeControl{})

	next, _ := m.Update(CycleMsg{Report: app.CycleReport{
		Cycle:   9,
		Outcome: app.OutcomeExecuted,
		Candidates: []detection.Candidate{
			{ID: "0123456789", BuyVenue: "binance", SellVenue: "kraken", ProfitPct: decimal.RequireFromString("0.8"), Status: detection.StatusConfirmed},
			{ID: "abc", BuyVenue: "kraken", SellVenue: "binance", Status: detection.StatusRejected},
		},
	}})
	m = next.(Model)

	assert.Equal(t, 2, m.candidates.Len())
	assert.Equal(t, int64(9), m.lastCycle.Cycle)
	view := m.View()
	assert.Contains(t, view, "01234567")
	assert.Contains(t, view, "binance→kraken")

	next, _ = m.Update(keyMsg("c"))
	assert.Equal(t, 0, next.(Model).candidates.Len())
}
