package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeSessionUpdate = "session.update"
	TypeConsoleState  = "console.state"
	TypeConsoleEntry  = "console.entry"
	TypeAssetsReload  = "assets.reload"
	TypeError         = "error"
)

// Client → Server message types.
const (
	TypeConsoleInput          = "console.input"
	TypeConsoleSubmit         = "console.submit"
	TypeConsoleRecallPrevious = "console.recallPrevious"
	TypeConsoleRecallNext     = "console.recallNext"
	TypeConsoleSnapshot       = "console.snapshot"
)

// Error codes.
const (
	ErrSessionNotFound   = "SESSION_NOT_FOUND"
	ErrSessionTerminated = "SESSION_TERMINATED"
	ErrInvalidMessage    = "INVALID_MESSAGE"
	ErrMaxSessions       = "MAX_SESSIONS"
	ErrBusy              = "BUSY"
	ErrDisconnected      = "DISCONNECTED"
	ErrEmptyInput        = "EMPTY_INPUT"
)

// Server → Client payloads.

type SessionUpdatePayload struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Label     string `json:"label"`
	CreatedAt string `json:"createdAt"`
}

// MetricsPayload mirrors console.Metrics.
type MetricsPayload struct {
	CPU              float64 `json:"cpu"`
	Memory           float64 `json:"memory"`
	Disk             float64 `json:"disk"`
	WorkingDirectory string  `json:"workingDirectory"`
}

// EntryPayload is one transcript entry.
type EntryPayload struct {
	SessionID string `json:"sessionId"`
	ID        string `json:"id"`
	Input     string `json:"input"`
	System    bool   `json:"system,omitempty"`
	Output    string `json:"output"`
	Error     bool   `json:"error"`
	Clear     bool   `json:"clear,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ConsoleStatePayload carries everything a console view renders. The
// transcript is only included when Full is set; incremental updates carry
// new entries as console.entry messages instead.
type ConsoleStatePayload struct {
	SessionID       string         `json:"sessionId"`
	Full            bool           `json:"full"`
	Transcript      []EntryPayload `json:"transcript,omitempty"`
	TranscriptLen   int            `json:"transcriptLength"`
	ViewStart       int            `json:"viewStart"`
	PendingInput    string         `json:"pendingInput"`
	Busy            bool           `json:"busy"`
	Connected       bool           `json:"connected"`
	Metrics         MetricsPayload `json:"metrics"`
	PromptDirectory string         `json:"promptDirectory"`
	History         []string       `json:"history"`
	HistoryCursor   int            `json:"historyCursor"`
}

type AssetsReloadPayload struct {
	Path string `json:"path"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type ConsoleInputPayload struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type SessionIDPayload struct {
	SessionID string `json:"sessionId"`
}
