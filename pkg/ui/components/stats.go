package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Stats holds scheduler counters for display.
type Stats struct {
	Cycles        int64
	Skipped       int64
	InFlight      int
	Opportunities int64
	Successful    int64
	Failed        int64
	AdapterErrors int64
	Profit        decimal.Decimal
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	profitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)

	successRate := float64(0)
	if done := s.stats.Successful + s.stats.Failed; done > 0 {
		successRate = float64(s.stats.Successful) / float64(done) * 100
	}

	failed := valueStyle.Render(fmt.Sprintf("%d", s.stats.Failed))
	if s.stats.Failed > 0 {
		failed = errorStyle.Render(fmt.Sprintf("%d", s.stats.Failed))
	}
	if s.stats.Profit.IsNegative() {
		profitStyle = errorStyle
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Cycles: %s (skipped %s, in flight %s)  │  Opportunities: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Cycles)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Skipped)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.InFlight)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Opportunities)),
		) +
		fmt.Sprintf("Trades: %s ok / %s failed (%.1f%%)  │  Adapter errors: %s  │  Profit: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Successful)),
			failed,
			successRate,
			valueStyle.Render(fmt.Sprintf("%d", s.stats.AdapterErrors)),
			profitStyle.Render(s.stats.Profit.StringFixed(2)),
		)
}
