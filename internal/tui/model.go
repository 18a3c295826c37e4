package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"framecast/internal/progress"
)

// Controller is the part of the control state the view drives.
type Controller interface {
	Pause()
	Resume()
	Cancel()
}

type Model struct {
	events     <-chan progress.Event
	control    Controller
	started    time.Time
	width      int
	last       progress.Event
	formats    int
	paused     bool
	cancelling bool
	quitting   bool
}

type doneMsg struct{}

type eventMsg progress.Event

func NewModel(events <-chan progress.Event, control Controller) Model {
	return Model{events: events, control: control, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForEvents(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := progress.Event(msg)
		if ev.Format != m.last.Format {
			m.formats++
		}
		m.last = ev
		return m, listenForEvents(m.events)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

// handleKey never quits the program itself; the view ends when the event
// stream closes, after the conversion has cleaned up.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.control == nil || m.cancelling {
		return m, nil
	}
	switch msg.String() {
	case "p":
		m.control.Pause()
		m.paused = true
	case "r":
		m.control.Resume()
		m.paused = false
	case "c", "ctrl+c":
		m.control.Cancel()
		m.cancelling = true
		m.paused = false
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	phase := m.last.Phase
	if phase == "" {
		phase = "Scanning frames"
	}
	status := ""
	switch {
	case m.cancelling:
		status = warnStyle.Render("  cancelling…")
	case m.paused:
		status = warnStyle.Render("  paused")
	}

	format := "-"
	if m.last.Format != "" {
		format = strings.ToUpper(string(m.last.Format))
	}
	elapsed := time.Since(m.started).Round(time.Millisecond)

	lines := []string{
		titleStyle.Render("framecast"),
		labelStyle.Render(phase) + status,
		labelStyle.Render(fmt.Sprintf("Format: %s", format)) + dimStyle.Render(fmt.Sprintf("  #%d", max(m.formats, 1))),
		labelStyle.Render(fmt.Sprintf("Frames: %d/%d", m.last.Current, m.last.Total)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(renderBar(barWidth, m.last.Percent/100)) + dimStyle.Render(fmt.Sprintf(" %5.1f%%", m.last.Percent)),
		dimStyle.Render("p pause · r resume · c cancel"),
	}

	return strings.Join(lines, "\n")
}

func listenForEvents(events <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
	warnStyle  = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
)
