// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// CandidateRow is one candidate in the list.
type CandidateRow struct {
	Time      string
	Cycle     int64
	ID        string
	Strategy  string
	Symbol    string
	Route     string
	ProfitPct decimal.Decimal
	NetProfit decimal.Decimal
	Status    string
}

// CandidatesComponent renders the most recent candidates, newest first.
type CandidatesComponent struct {
	rows    []CandidateRow
	maxRows int
	visible int
	offset  int
}

func NewCandidatesComponent(maxRows, visible int) *CandidatesComponent {
	return &CandidatesComponent{
		rows:    make([]CandidateRow, 0, maxRows),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add prepends rows, keeping the newest maxRows.
func (c *CandidatesComponent) Add(rows ...CandidateRow) {
	if len(rows) == 0 {
		return
	}
	c.rows = append(append(make([]CandidateRow, 0, len(rows)+len(c.rows)), rows...), c.rows...)
	if len(c.rows) > c.maxRows {
		c.rows = c.rows[:c.maxRows]
	}
	c.offset = 0
}

func (c *CandidatesComponent) Clear() {
	c.rows = c.rows[:0]
	c.offset = 0
}

func (c *CandidatesComponent) Len() int { return len(c.rows) }

func (c *CandidatesComponent) ScrollUp() {
	if c.offset > 0 {
		c.offset--
	}
}

func (c *CandidatesComponent) ScrollDown() {
	if c.offset < len(c.rows)-c.visible {
		c.offset++
	}
}

// View renders the visible window of the list.
func (c *CandidatesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	if len(c.rows) == 0 {
		return headerStyle.Render("CANDIDATES") + "\n\n" +
			lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Render("  No candidates detected yet...")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("CANDIDATES (%d, newest first)", len(c.rows))))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  %-8s %-5s %-8s %-12s %-10s %-22s %8s %9s  %s\n",
		"Time", "Cycle", "ID", "Strategy", "Symbol", "Route", "Profit", "Net", "Status")

	end := min(c.offset+c.visible, len(c.rows))
	for _, row := range c.rows[c.offset:end] {
		fmt.Fprintf(&b, "  %-8s %5d %-8s %-12s %-10s %-22s %8s %9s  %s\n",
			row.Time,
			row.Cycle,
			row.ID,
			row.Strategy,
			row.Symbol,
			truncate(row.Route, 22),
			row.ProfitPct.StringFixed(2)+"%",
			row.NetProfit.StringFixed(2),
			StatusStyle(row.Status).Render(row.Status),
		)
	}
	if len(c.rows) > c.visible {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).
			Render(fmt.Sprintf("  showing %d-%d of %d", c.offset+1, end, len(c.rows))))
	}
	return b.String()
}

// StatusStyle colors a candidate status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "confirmed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	case "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	case "rejected", "expired":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
