// Package ui provides the Bubble Tea monitor for the arbitrage scanner.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Modules starting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

const (
	pollInterval = time.Second
	maxErrors    = 3
	maxActivity  = 6
)

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	candidates *components.CandidatesComponent
	venues     *components.VenuesComponent
	stats      *components.StatsComponent
	risk       *components.RiskComponent
	keys       KeyMap
	help       help.Model

	control Control

	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time

	ready    bool
	quitting bool
	scanning bool // manual scan in flight
	running  bool
	paused   bool
	width    int
	height   int

	status       app.Status
	lastCycle    *app.CycleReport
	lastPoll     time.Time
	lastUpdate   time.Time
	activityFeed []string
	errors       []ErrorEntry

	now func() time.Time
}

// New creates a new TUI model. The control surface arrives later in a
// ReadyMsg.
func New() Model {
	now := time.Now()
	return Model{
		candidates:   components.NewCandidatesComponent(100, 12),
		venues:       components.NewVenuesComponent(),
		stats:        components.NewStatsComponent(),
		risk:         components.NewRiskComponent(),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		startupTime:  now,
		activityFeed: make([]string, 0, maxActivity),
		errors:       make([]ErrorEntry, 0, maxErrors),
		now:          time.Now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func pollCmd(c Control) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Status: c.GetStatus()}
	}
}

func scanCmd(c Control) tea.Cmd {
	return func() tea.Msg {
		report, err := c.Scan(context.Background())
		return ScanDoneMsg{Report: report, Err: err}
	}
}

func pauseCmd(c Control) tea.Cmd {
	return func() tea.Msg {
		return PauseMsg{Paused: c.TogglePause(context.Background())}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to startup
		if m.phase == PhaseWelcome {
			m.beginStartup()
			return m, tickCmd()
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && m.now().Sub(m.welcomeStart) >= WelcomeDuration {
			m.beginStartup()
		}
		if m.control != nil && m.now().Sub(m.lastPoll) >= pollInterval {
			m.lastPoll = m.now()
			return m, tea.Batch(tickCmd(), pollCmd(m.control))
		}
		return m, tickCmd()

	case ReadyMsg:
		m.control = msg.Control
		m.phase = PhaseDashboard
		m.lastPoll = m.now()
		m.addActivity("scanner ready")
		return m, pollCmd(m.control)

	case StatusMsg:
		m.applyStatus(msg.Status)

	case CycleMsg:
		r := msg.Report
		m.lastCycle = &r
		m.candidates.Add(candidateRows(r)...)
		m.addActivity(fmt.Sprintf("cycle #%d %s: %d candidates, %d executed, profit %s",
			r.Cycle, r.Outcome, len(r.Candidates), r.Result.Executed, r.Result.Profit.StringFixed(2)))
		if r.Error != "" {
			m.addError(r.Error)
		}
		m.lastUpdate = m.now()

	case ConnectionStatusMsg:
		m.venues.Update(venueRows(msg.Status))
		m.lastUpdate = m.now()

	case ScanDoneMsg:
		m.scanning = false
		if msg.Err != nil {
			m.addError("manual scan: " + msg.Err.Error())
			break
		}
		m.addActivity(fmt.Sprintf("manual scan #%d finished: %s", msg.Report.Cycle, msg.Report.Outcome))

	case PauseMsg:
		m.paused = msg.Paused
		if msg.Paused {
			m.addActivity("execution paused")
		} else {
			m.addActivity("execution resumed")
		}

	case ErrorMsg:
		m.addError(msg.Error.Error())

	case LogMsg:
		m.addActivity(fmt.Sprintf("%s: %s", msg.Level, msg.Message))
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Scan):
		if m.control == nil || m.scanning {
			return m, nil
		}
		m.scanning = true
		m.addActivity("manual scan requested")
		return m, scanCmd(m.control)
	case key.Matches(msg, m.keys.Pause):
		if m.control == nil {
			return m, nil
		}
		return m, pauseCmd(m.control)
	case key.Matches(msg, m.keys.Clear):
		m.candidates.Clear()
	case key.Matches(msg, m.keys.ClearErrors):
		m.errors = m.errors[:0]
	case key.Matches(msg, m.keys.Up):
		m.candidates.ScrollUp()
	case key.Matches(msg, m.keys.Down):
		m.candidates.ScrollDown()
	}
	return m, nil
}

func (m *Model) beginStartup() {
	m.phase = PhaseStartup
	m.startupTime = m.now()
	// Trigger callback directly (don't use Send() from within Update)
	if OnStartModules != nil {
		go OnStartModules()
	}
}

func (m *Model) applyStatus(s app.Status) {
	m.status = s
	m.running = s.Running
	m.paused = s.Paused
	m.stats.Update(statsOf(s))
	m.risk.Update(riskOf(s))
	m.venues.Update(venueRows(s.MarketData))
	if s.LastCycle != nil && (m.lastCycle == nil || s.LastCycle.Cycle > m.lastCycle.Cycle) {
		m.lastCycle = s.LastCycle
	}
	m.lastUpdate = m.now()
}

func (m *Model) addActivity(message string) {
	line := fmt.Sprintf("[%s] %s", m.now().Format("15:04:05"), message)
	m.activityFeed = append(m.activityFeed, line)
	if len(m.activityFeed) > maxActivity {
		m.activityFeed = m.activityFeed[len(m.activityFeed)-maxActivity:]
	}
}

func (m *Model) addError(message string) {
	m.errors = append(m.errors, ErrorEntry{Message: message, Timestamp: m.now()})
	if len(m.errors) > maxErrors {
		m.errors = m.errors[len(m.errors)-maxErrors:]
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" 📈 Arbitrage Scanner "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	leftCol := m.risk.View() + "\n\n" + m.venues.View()
	rightCol := m.renderActivityFeed() + "\n\n" + m.candidates.View()

	// Side by side if enough width
	if m.width > 120 {
		left := BoxStyle.Width(m.width/3 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width*2/3 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		width := max(m.width-4, 40)
		b.WriteString(BoxStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(rightCol))
	}
	b.WriteString("\n")
	b.WriteString(m.stats.View())
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := m.now().Sub(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(StatusPaused.Render("⏸ EXECUTION PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderActivityFeed() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("LIVE ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for the first cycle..."))
		return sb.String()
	}
	for _, activity := range m.activityFeed {
		sb.WriteString(MutedValue.Render("  " + activity))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	goldStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	dotCount := int(m.now().Sub(m.welcomeStart).Milliseconds()/300) % 4
	dots := strings.Repeat(".", dotCount)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
    ███████╗ ██████╗ █████╗ ███╗   ██╗███╗   ██╗███████╗██████╗
    ██╔════╝██╔════╝██╔══██╗████╗  ██║████╗  ██║██╔════╝██╔══██╗
    ███████╗██║     ███████║██╔██╗ ██║██╔██╗ ██║█████╗  ██████╔╝
    ╚════██║██║     ██╔══██║██║╚██╗██║██║╚██╗██║██╔══╝  ██╔══██╗
    ███████║╚██████╗██║  ██║██║ ╚████║██║ ╚████║███████╗██║  ██║
    ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═══╝╚═╝  ╚═══╝╚══════╝╚═╝  ╚═╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("              M U L T I - V E N U E   A R B I T R A G E"))
	sb.WriteString("\n\n\n")
	sb.WriteString(goldStyle.Render("                 spot • triangular • momentum • yield"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                        Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("                Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  📈 Arbitrage Scanner"))
	sb.WriteString("\n\n")

	spinners := []string{"◐", "◓", "◑", "◒"}
	idx := int(m.now().Sub(m.startupTime).Milliseconds()/200) % len(spinners)
	sb.WriteString(fmt.Sprintf("  %s %s\n",
		connectingStyle.Render(spinners[idx]),
		MutedValue.Render("Starting market data, detection, risk, execution and scanner modules..."),
	))
	sb.WriteString("\n")
	elapsed := m.now().Sub(m.startupTime).Round(time.Second)
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")

	for _, err := range m.errors {
		sb.WriteString(failedStyle.Render("  ✗ " + err.Message))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	switch {
	case m.status.Halted != "":
		parts = append(parts, StatusDisconnected.Render("✗ Halted"))
	case m.running:
		parts = append(parts, StatusConnected.Render("● Running"))
	default:
		parts = append(parts, StatusDisconnected.Render("○ Stopped"))
	}

	if m.scanning {
		spinners := []string{"⟳", "◐", "◓", "◑", "◒"}
		idx := int(m.now().UnixMilli()/100) % len(spinners)
		parts = append(parts, StatusConnected.Render(spinners[idx]+" Scanning"))
	}

	parts = append(parts, fmt.Sprintf("Cycles: %d", m.status.CycleCount))
	if m.status.InFlight > 0 {
		parts = append(parts, fmt.Sprintf("In flight: %d", m.status.InFlight))
	}

	if c := m.lastCycle; c != nil {
		parts = append(parts, fmt.Sprintf("Last: #%d %s (%s)",
			c.Cycle,
			OutcomeStyle(string(c.Outcome)).Render(string(c.Outcome)),
			c.Duration.Round(time.Millisecond)))
	}

	if !m.lastUpdate.IsZero() {
		ago := m.now().Sub(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}

	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
var OnStartModules func()

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}
