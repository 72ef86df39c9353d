package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"webterm/internal/console"
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	inputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	systemStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	onlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	offStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// controller is the part of console.Controller the TUI drives.
type controller interface {
	SetInput(text string) error
	Submit() (<-chan console.Entry, error)
	RecallPrevious() (string, error)
	RecallNext() (string, error)
}

type updateMsg console.Update

type closedMsg struct{}

type Model struct {
	ctrl    controller
	updates <-chan console.Update
	state   console.State
	input   textinput.Model
	notice  string
	width   int
	height  int
}

func newModel(ctrl controller, updates <-chan console.Update, initial console.State) Model {
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = 4096
	in.Focus()
	in.SetValue(initial.PendingInput)

	return Model{
		ctrl:    ctrl,
		updates: updates,
		state:   initial,
		input:   in,
		width:   100,
		height:  30,
	}
}

func waitForUpdate(ch <-chan console.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.updates))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case updateMsg:
		// The input line is edited locally, so updates echoing earlier
		// keystrokes are ignored. Only a finished command, which clears
		// the pending input, replaces it.
		finished := msg.Entry != nil || (m.state.Busy && !msg.State.Busy)
		m.state = msg.State
		if finished {
			m.setInput(msg.State.PendingInput)
		}
		return m, waitForUpdate(m.updates)

	case closedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		if _, err := m.ctrl.Submit(); err != nil {
			m.notice = submitNotice(err)
		}
		return m, nil

	case "up":
		if input, err := m.ctrl.RecallPrevious(); err == nil {
			m.setInput(input)
		}
		return m, nil

	case "down":
		if input, err := m.ctrl.RecallNext(); err == nil {
			m.setInput(input)
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.ctrl.SetInput(v)
	}
	return m, cmd
}

func (m *Model) setInput(text string) {
	if m.input.Value() != text {
		m.input.SetValue(text)
		m.input.CursorEnd()
	}
}

func submitNotice(err error) string {
	switch {
	case errors.Is(err, console.ErrEmptyInput):
		return ""
	case errors.Is(err, console.ErrBusy):
		return "a command is still running"
	case errors.Is(err, console.ErrDisconnected):
		return "not connected to the terminal server"
	default:
		return err.Error()
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	lines := m.transcriptLines()
	// Leave room for the status line, prompt and notice.
	if room := m.height - 5; room > 0 && len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}

	prompt := promptStyle.Render(m.promptLabel())
	if m.state.Busy {
		b.WriteString(prompt + dimStyle.Render(" running..."))
	} else {
		b.WriteString(prompt + " " + m.input.View())
	}
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("Enter: run  ↑↓: history  Esc: quit"))
	return b.String()
}

func (m Model) statusLine() string {
	conn := offStyle.Render("● offline")
	if m.state.Connected {
		conn = onlineStyle.Render("● online")
	}
	mt := m.state.Metrics
	metrics := dimStyle.Render(fmt.Sprintf("cpu %.0f%%  mem %.0f%%  disk %.0f%%", mt.CPU, mt.Memory, mt.Disk))
	return conn + "  " + metrics
}

func (m Model) promptLabel() string {
	dir := m.state.PromptDirectory()
	if dir == "" {
		dir = "~"
	}
	return dir + " $"
}

func (m Model) transcriptLines() []string {
	var lines []string
	for _, e := range m.state.Visible() {
		if e.IsSystem() {
			lines = append(lines, systemStyle.Render(e.Output))
			continue
		}
		if e.Clear {
			continue
		}
		lines = append(lines, promptStyle.Render("$ ")+inputStyle.Render(e.Input))
		if e.Output == "" {
			continue
		}
		style := lipgloss.NewStyle()
		if e.Error {
			style = errorStyle
		}
		for _, l := range strings.Split(strings.TrimRight(e.Output, "\n"), "\n") {
			lines = append(lines, style.Render(l))
		}
	}
	return lines
}
