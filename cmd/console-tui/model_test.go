package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webterm/internal/backend"
	"webterm/internal/console"
)

type stubController struct {
	inputs    []string
	submits   int
	previous  int
	next      int
	submitErr error
	recalled  string
}

func (s *stubController) SetInput(text string) error {
	s.inputs = append(s.inputs, text)
	return nil
}

func (s *stubController) Submit() (<-chan console.Entry, error) {
	s.submits++
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	ch := make(chan console.Entry)
	close(ch)
	return ch, nil
}

func (s *stubController) RecallPrevious() (string, error) {
	s.previous++
	return s.recalled, nil
}

func (s *stubController) RecallNext() (string, error) {
	s.next++
	return s.recalled, nil
}

func newTestModel(ctrl *stubController, state console.State) (Model, chan console.Update) {
	ch := make(chan console.Update, 4)
	return newModel(ctrl, ch, state), ch
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestModel_TypingForwardsInput(t *testing.T) {
	ctrl := &stubController{}
	m, _ := newTestModel(ctrl, console.State{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})

	assert.Equal(t, []string{"l", "ls"}, ctrl.inputs)
	assert.Equal(t, "ls", m.input.Value())
}

func TestModel_KeysDriveController(t *testing.T) {
	ctrl := &stubController{}
	m, _ := newTestModel(ctrl, console.State{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	_, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})

	assert.Equal(t, 1, ctrl.submits)
	assert.Equal(t, 2, ctrl.previous)
	assert.Equal(t, 1, ctrl.next)
	assert.Empty(t, ctrl.inputs)
}

func TestModel_SubmitRejectionShowsNotice(t *testing.T) {
	ctrl := &stubController{submitErr: console.ErrDisconnected}
	m, _ := newTestModel(ctrl, console.State{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "not connected")

	ctrl.submitErr = console.ErrEmptyInput
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.notice)
}

func TestModel_RecallSetsInput(t *testing.T) {
	ctrl := &stubController{recalled: "make test"}
	m, _ := newTestModel(ctrl, console.State{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "make test", m.input.Value())

	ctrl.recalled = ""
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "", m.input.Value())
	assert.Empty(t, ctrl.inputs, "recall must not echo back")
}

func TestModel_StateUpdateKeepsLocalInput(t *testing.T) {
	ctrl := &stubController{}
	m, ch := newTestModel(ctrl, console.State{})
	m.input.SetValue("git st")

	state := console.State{PendingInput: "git", Connected: true}
	m, cmd := update(t, m, updateMsg(console.Update{Kind: console.UpdateState, State: state}))
	require.NotNil(t, cmd)

	assert.Equal(t, "git st", m.input.Value())
	assert.True(t, m.state.Connected)

	// The returned command waits for the next update.
	ch <- console.Update{Kind: console.UpdateState, State: console.State{PendingInput: "x"}}
	msg := cmd()
	u, ok := msg.(updateMsg)
	require.True(t, ok)
	assert.Equal(t, "x", u.State.PendingInput)
}

func TestModel_FinishedCommandClearsInput(t *testing.T) {
	ctrl := &stubController{}
	m, _ := newTestModel(ctrl, console.State{Busy: true})
	m.input.SetValue("stray")

	entry := console.Entry{Input: "ls"}
	m, _ = update(t, m, updateMsg(console.Update{Kind: console.UpdateEntry, State: console.State{}, Entry: &entry}))
	assert.Equal(t, "", m.input.Value())

	// A missed entry update is covered by the busy flag dropping.
	m.state.Busy = true
	m.input.SetValue("stray")
	m, _ = update(t, m, updateMsg(console.Update{Kind: console.UpdateState, State: console.State{}}))
	assert.Equal(t, "", m.input.Value())
}

type echoBackend struct{}

func (echoBackend) Health(ctx context.Context) error { return nil }

func (echoBackend) SystemInfo(ctx context.Context) (backend.SystemInfo, error) {
	return backend.SystemInfo{}, nil
}

func (echoBackend) Execute(ctx context.Context, req backend.ExecuteRequest) (backend.ExecuteResponse, error) {
	return backend.ExecuteResponse{Output: req.Command}, nil
}

func startController(t *testing.T) (*console.Controller, <-chan console.Update, console.State) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctrl := console.New(echoBackend{}, console.WithPollInterval(time.Hour), console.WithLogger(log))
	t.Cleanup(ctrl.Close)

	_, updates, state, err := ctrl.Subscribe()
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())
	require.Eventually(t, func() bool {
		s, err := ctrl.Snapshot()
		return err == nil && s.Connected
	}, 2*time.Second, 5*time.Millisecond)
	return ctrl, updates, state
}

// deliverOne feeds a single queued controller update to the model.
func deliverOne(t *testing.T, m Model, updates <-chan console.Update) Model {
	t.Helper()
	select {
	case u := <-updates:
		m, _ = update(t, m, updateMsg(u))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a queued update")
	}
	return m
}

// deliverQueued feeds every update already queued to the model.
func deliverQueued(t *testing.T, m Model, updates <-chan console.Update) Model {
	t.Helper()
	for {
		select {
		case u := <-updates:
			m, _ = update(t, m, updateMsg(u))
		default:
			return m
		}
	}
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestModel_TypingInterleavedWithUpdates(t *testing.T) {
	ctrl, updates, state := startController(t)
	m := newModel(ctrl, updates, state)
	m = deliverQueued(t, m, updates)

	m = typeText(t, m, "ab")
	// The echo of "a" arrives after "b" was typed.
	m = deliverOne(t, m, updates)
	assert.Equal(t, "ab", m.input.Value())

	m = typeText(t, m, "c")
	m = deliverQueued(t, m, updates)
	assert.Equal(t, "abc", m.input.Value())

	s, err := ctrl.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "abc", s.PendingInput)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	for m.input.Value() != "" {
		m = deliverOne(t, m, updates)
	}
	s, err = ctrl.Snapshot()
	require.NoError(t, err)
	require.Len(t, s.Transcript, 2)
	assert.Equal(t, "abc", s.Transcript[1].Input)

	m = typeText(t, m, "x")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	// Echo of "x" is still queued behind the recall.
	m = deliverQueued(t, m, updates)
	assert.Equal(t, "abc", m.input.Value())
}

func TestModel_ClosedSubscriptionQuits(t *testing.T) {
	ctrl := &stubController{}
	m, ch := newTestModel(ctrl, console.State{})
	close(ch)

	msg := waitForUpdate(ch)()
	_, cmd := update(t, m, msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_View(t *testing.T) {
	ctrl := &stubController{}
	state := console.State{
		Connected: true,
		Metrics:   console.Metrics{CPU: 12, Memory: 34, Disk: 56, WorkingDirectory: "/srv"},
		Transcript: []console.Entry{
			{Input: console.SystemInput, Output: "welcome"},
			{Input: "ls", Output: "a\nb\n"},
			{Input: "cat nope", Output: "no such file", Error: true},
		},
		WorkingDirectory: "/home/user",
	}
	m, _ := newTestModel(ctrl, state)

	view := m.View()
	for _, want := range []string{"online", "cpu 12%", "welcome", "ls", "a", "b", "no such file", "/home/user $"} {
		assert.Contains(t, view, want)
	}
	assert.NotContains(t, view, "/srv $")
}

func TestModel_ViewHonoursClear(t *testing.T) {
	ctrl := &stubController{}
	state := console.State{
		Transcript: []console.Entry{
			{Input: "echo old", Output: "old"},
			{Input: "clear", Clear: true},
			{Input: "echo new", Output: "new"},
		},
		ViewStart: 2,
		Busy:      true,
	}
	m, _ := newTestModel(ctrl, state)

	view := m.View()
	assert.NotContains(t, view, "old")
	assert.True(t, strings.Contains(view, "new"))
	assert.Contains(t, view, "offline")
	assert.Contains(t, view, "running")
}
