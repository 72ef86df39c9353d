package console

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SystemInput marks an Entry produced by the console itself rather than
// typed by the user.
const SystemInput = "\x00system"

// NoCursor is the history cursor value meaning "not browsing history".
const NoCursor = -1

// Entry is one exchange in the transcript. Entries are never modified after
// they are appended.
type Entry struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
	Error     bool      `json:"error"`
	// Clear is set when the service asked for the visible console to be
	// reset. The transcript keeps every entry regardless.
	Clear bool `json:"clear,omitempty"`
}

// IsSystem reports whether e is a console-generated message.
func (e Entry) IsSystem() bool {
	return e.Input == SystemInput
}

func newEntry(input, output string, isErr bool) Entry {
	return Entry{
		ID:        uuid.New().String(),
		Input:     input,
		Output:    output,
		Timestamp: time.Now().UTC(),
		Error:     isErr,
	}
}

// Metrics is the last system snapshot reported by the service.
type Metrics struct {
	CPU              float64 `json:"cpu"`
	Memory           float64 `json:"memory"`
	Disk             float64 `json:"disk"`
	WorkingDirectory string  `json:"workingDirectory"`
}

// State is the observable state of one console session.
type State struct {
	Transcript    []Entry  `json:"transcript"`
	PendingInput  string   `json:"pendingInput"`
	Busy          bool     `json:"busy"`
	Connected     bool     `json:"connected"`
	Metrics       Metrics  `json:"metrics"`
	History       []string `json:"history"`
	HistoryCursor int      `json:"historyCursor"`
	// WorkingDirectory is the directory reported by the most recent
	// command execution, empty until one reports it.
	WorkingDirectory string `json:"workingDirectory"`
	// ViewStart is the index of the first transcript entry to display.
	ViewStart int `json:"viewStart"`
}

// PromptDirectory is the directory to show in the prompt: the one from the
// last execution when known, otherwise the one from metrics.
func (s State) PromptDirectory() string {
	if s.WorkingDirectory != "" {
		return s.WorkingDirectory
	}
	return s.Metrics.WorkingDirectory
}

// Visible returns the transcript entries after the last clear.
func (s State) Visible() []Entry {
	if s.ViewStart >= len(s.Transcript) {
		return nil
	}
	return s.Transcript[s.ViewStart:]
}

func (s State) clone() State {
	out := s
	out.Transcript = append([]Entry(nil), s.Transcript...)
	out.History = append([]string(nil), s.History...)
	return out
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
