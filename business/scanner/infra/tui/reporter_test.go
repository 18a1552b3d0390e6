package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	md "github.com/fd1az/arbitrage-scanner/business/marketdata/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/pkg/ui"
)

func TestReporter_Forwards(t *testing.T) {
	var got []tea.Msg
	r := NewReporterFunc(func(m tea.Msg) { got = append(got, m) })

	r.ReportCycle(app.CycleReport{Cycle: 3, Outcome: app.OutcomeExecuted})
	r.UpdateConnectionStatus(md.Status{Connected: true})

	require.Len(t, got, 2)
	cycle, ok := got[0].(ui.CycleMsg)
	require.True(t, ok)
	assert.Equal(t, int64(3), cycle.Report.Cycle)
	conn, ok := got[1].(ui.ConnectionStatusMsg)
	require.True(t, ok)
	assert.True(t, conn.Status.Connected)
}
