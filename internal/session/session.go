package session

import "time"

// State represents the lifecycle state of a session.
type State string

const (
	StateActive     State = "active"
	StateTerminated State = "terminated"
)

// Session holds metadata for one console session.
type Session struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}
