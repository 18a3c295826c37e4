package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecast/internal/model"
	"framecast/internal/progress"
)

type recordingControl struct {
	calls []string
}

func (r *recordingControl) Pause()  { r.calls = append(r.calls, "pause") }
func (r *recordingControl) Resume() { r.calls = append(r.calls, "resume") }
func (r *recordingControl) Cancel() { r.calls = append(r.calls, "cancel") }

func TestKeysDriveControl(t *testing.T) {
	ctl := &recordingControl{}
	var m tea.Model = NewModel(make(chan progress.Event), ctl)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	assert.Contains(t, m.View(), "paused")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.NotContains(t, m.View(), "paused")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Contains(t, m.View(), "cancelling")
	// Keys after cancel are ignored.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})

	assert.Equal(t, []string{"pause", "resume", "cancel"}, ctl.calls)
}

func TestEventsRenderAndStreamEndQuits(t *testing.T) {
	events := make(chan progress.Event, 1)
	var m tea.Model = NewModel(events, nil)

	m, cmd := m.Update(eventMsg(progress.Event{Phase: "Encoding GIF", Current: 3, Total: 10, Percent: 30, Format: model.FormatGIF}))
	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Encoding GIF")
	assert.Contains(t, view, "Frames: 3/10")
	assert.Contains(t, view, "GIF")

	close(events)
	msg := cmd()
	_, ok := msg.(doneMsg)
	require.True(t, ok)
	m, _ = m.Update(msg)
	assert.Empty(t, m.View())
}

func TestResultRows(t *testing.T) {
	rows := ResultRows([]model.Result{
		{Format: model.FormatGIF, Path: "/o/a.gif", Success: true, OriginalSize: 2048, CompressedSize: 2048},
		{Format: model.FormatAPNG, Path: "/o/a.png", Success: true, OriginalSize: 4096, CompressedSize: 1024, Error: ""},
		{Format: model.FormatWebP, Error: "conversion cancelled"},
	})
	require.Len(t, rows, 4)
	assert.Equal(t, "/o/a.gif (2.0 KiB)", rows[0].Value)
	assert.Equal(t, "/o/a.png (4.0 KiB -> 1.0 KiB)", rows[1].Value)
	assert.True(t, rows[2].Fail)
	assert.Equal(t, "conversion cancelled", rows[3].Value)

	out := RenderSummary(rows)
	assert.Equal(t, 6, len(strings.Split(out, "\n")))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.5 MiB", HumanBytes(3*1024*1024/2))
}
