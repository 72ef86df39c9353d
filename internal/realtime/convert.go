package realtime

import (
	"time"

	"webterm/internal/console"
	"webterm/internal/protocol"
	"webterm/internal/session"
)

func entryPayload(sessionID string, e console.Entry) protocol.EntryPayload {
	p := protocol.EntryPayload{
		SessionID: sessionID,
		ID:        e.ID,
		Input:     e.Input,
		Output:    e.Output,
		Error:     e.Error,
		Clear:     e.Clear,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.IsSystem() {
		p.Input = ""
		p.System = true
	}
	return p
}

func statePayload(sessionID string, s console.State, full bool) protocol.ConsoleStatePayload {
	p := protocol.ConsoleStatePayload{
		SessionID:     sessionID,
		Full:          full,
		TranscriptLen: len(s.Transcript),
		ViewStart:     s.ViewStart,
		PendingInput:  s.PendingInput,
		Busy:          s.Busy,
		Connected:     s.Connected,
		Metrics: protocol.MetricsPayload{
			CPU:              s.Metrics.CPU,
			Memory:           s.Metrics.Memory,
			Disk:             s.Metrics.Disk,
			WorkingDirectory: s.Metrics.WorkingDirectory,
		},
		PromptDirectory: s.PromptDirectory(),
		History:         s.History,
		HistoryCursor:   s.HistoryCursor,
	}
	if p.History == nil {
		p.History = []string{}
	}
	if full {
		p.Transcript = make([]protocol.EntryPayload, 0, len(s.Transcript))
		for _, e := range s.Transcript {
			p.Transcript = append(p.Transcript, entryPayload(sessionID, e))
		}
	}
	return p
}

func sessionPayload(sess *session.Session) protocol.SessionUpdatePayload {
	return protocol.SessionUpdatePayload{
		ID:        sess.ID,
		State:     string(sess.State),
		Label:     sess.Label,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339Nano),
	}
}
