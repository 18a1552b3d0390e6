package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// RiskState is the portfolio and gate view.
type RiskState struct {
	Level            string
	ExecutionEnabled bool
	Paused           bool
	Halted           string
	Balance          decimal.Decimal
	DailyPnL         decimal.Decimal
	DailyLoss        decimal.Decimal
	ActivePositions  int
	Volatility       float64
	Liquidity        float64
	Reasons          []string
}

// RiskComponent renders the risk panel.
type RiskComponent struct {
	state RiskState
}

func NewRiskComponent() *RiskComponent {
	return &RiskComponent{}
}

func (r *RiskComponent) Update(state RiskState) {
	r.state = state
}

func (r *RiskComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	s := r.state
	gate := okStyle.Render("● executing")
	switch {
	case s.Halted != "":
		gate = badStyle.Render("✗ halted")
	case !s.ExecutionEnabled:
		gate = badStyle.Render("■ emergency stop")
	case s.Paused:
		gate = warnStyle.Render("⏸ paused")
	}

	levelStyle := okStyle
	switch s.Level {
	case "high", "critical":
		levelStyle = badStyle
	case "medium":
		levelStyle = warnStyle
	}

	pnlStyle := okStyle
	if s.DailyPnL.IsNegative() {
		pnlStyle = badStyle
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("RISK"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  Gate: %s   Level: %s\n", gate, levelStyle.Render(s.Level))
	fmt.Fprintf(&b, "  Balance: %s   Daily P&L: %s   Daily loss: %s\n",
		s.Balance.StringFixed(2), pnlStyle.Render(s.DailyPnL.StringFixed(2)), s.DailyLoss.StringFixed(2))
	fmt.Fprintf(&b, "  Open positions: %d   Volatility: %.2f   Liquidity: %.2f\n",
		s.ActivePositions, s.Volatility, s.Liquidity)
	if s.Halted != "" {
		b.WriteString(badStyle.Render("  " + s.Halted))
		b.WriteString("\n")
	}
	for _, reason := range s.Reasons {
		b.WriteString(mutedStyle.Render("  • " + reason))
		b.WriteString("\n")
	}
	return b.String()
}
