package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// VenueRow is one venue's market data connectivity.
type VenueRow struct {
	Venue      string
	Connected  bool
	Stale      bool
	LastUpdate time.Time
}

// VenuesComponent renders market data connectivity per venue.
type VenuesComponent struct {
	rows []VenueRow
	now  func() time.Time
}

func NewVenuesComponent() *VenuesComponent {
	return &VenuesComponent{now: time.Now}
}

// Update replaces the rows.
func (v *VenuesComponent) Update(rows []VenueRow) {
	v.rows = rows
}

func (v *VenuesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var b strings.Builder
	b.WriteString(headerStyle.Render("MARKET DATA"))
	b.WriteString("\n\n")
	if len(v.rows) == 0 {
		b.WriteString(mutedStyle.Render("  Waiting for venues..."))
		return b.String()
	}

	for _, row := range v.rows {
		icon, state := "●", "live"
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
		switch {
		case !row.Connected:
			icon, state = "○", "disconnected"
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
		case row.Stale:
			icon, state = "◐", "stale"
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
		}

		line := fmt.Sprintf("  %s %-10s %s", style.Render(icon), row.Venue, style.Render(state))
		if !row.LastUpdate.IsZero() {
			ago := v.now().Sub(row.LastUpdate).Round(time.Second)
			line += mutedStyle.Render(fmt.Sprintf("  (%s ago)", ago))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
