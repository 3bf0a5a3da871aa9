package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// ChainSnapshot is one chain's display state at a point in time.
type ChainSnapshot struct {
	ID        int
	State     string // lowercase state name
	Phase     string // "Warmup", "Sampling", "" when unknown
	Iteration int
	Total     int
}

// Fraction returns the chain's progress as 0.0 to 1.0.
func (s ChainSnapshot) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	f := float64(s.Iteration) / float64(s.Total)
	if f > 1 {
		return 1
	}
	return f
}

// SnapshotSource provides the current per-chain display state.
type SnapshotSource interface {
	Snapshots() []ChainSnapshot
}

// Config holds TUI configuration.
type Config struct {
	RunName     string
	ModelName   string
	Chains      int
	MetricsAddr string
	Source      SnapshotSource
}

// Model represents the TUI state.
type Model struct {
	runName     string
	modelName   string
	chains      int
	metricsAddr string

	source    SnapshotSource
	snapshots []ChainSnapshot

	startTime  time.Time
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		runName:     cfg.RunName,
		modelName:   cfg.ModelName,
		chains:      cfg.Chains,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.snapshots = m.source.Snapshots()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
