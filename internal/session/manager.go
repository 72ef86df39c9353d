package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webterm/internal/console"
)

// ErrMaxSessions is returned by Create when the session limit is reached.
var ErrMaxSessions = errors.New("maximum session limit reached")

// Manager manages the lifecycle of console sessions. Each session owns an
// independent console.Controller bound to the shared execution service.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*managedSession
	maxSessions int
	backend     console.Backend
	opts        []console.Option
	log         logrus.FieldLogger
}

type managedSession struct {
	Session    *Session
	controller *console.Controller
}

// NewManager creates a new session manager. opts are applied to every
// controller it creates.
func NewManager(maxSessions int, b console.Backend, log logrus.FieldLogger, opts ...console.Option) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		sessions:    make(map[string]*managedSession),
		maxSessions: maxSessions,
		backend:     b,
		opts:        opts,
		log:         log,
	}
}

// Create starts a new console session.
func (m *Manager) Create(label string) (*Session, error) {
	m.mu.Lock()
	activeCount := 0
	for _, ms := range m.sessions {
		if ms.Session.State != StateTerminated {
			activeCount++
		}
	}
	if activeCount >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", ErrMaxSessions, m.maxSessions)
	}

	id := uuid.New().String()
	sess := &Session{
		ID:        id,
		State:     StateActive,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}

	log := m.log.WithField("session", id)
	opts := append(append([]console.Option(nil), m.opts...), console.WithLogger(log))
	ctrl := console.New(m.backend, opts...)

	m.sessions[id] = &managedSession{Session: sess, controller: ctrl}
	m.mu.Unlock()

	if err := ctrl.Start(); err != nil {
		ctrl.Close()
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("start session: %w", err)
	}

	log.WithField("label", label).Info("session created")
	copied := *sess
	return &copied, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	copied := *ms.Session
	return &copied, nil
}

// Controller returns the console controller of an active session.
func (m *Manager) Controller(id string) (*console.Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if ms.Session.State == StateTerminated {
		return nil, fmt.Errorf("session terminated: %s", id)
	}
	return ms.controller, nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		copied := *ms.Session
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Subscribe registers for a session's change notifications and returns the
// session state at the time of registration.
func (m *Manager) Subscribe(id string) (string, <-chan console.Update, console.State, error) {
	ctrl, err := m.Controller(id)
	if err != nil {
		return "", nil, console.State{}, err
	}
	return ctrl.Subscribe()
}

// Unsubscribe removes a subscription created by Subscribe.
func (m *Manager) Unsubscribe(id, subID string) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		ms.controller.Unsubscribe(subID)
	}
}

// Kill terminates a session. Its controller stops polling and its
// subscribers are closed.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session not found: %s", id)
	}
	if ms.Session.State == StateTerminated {
		m.mu.Unlock()
		return nil // Already terminated.
	}
	ms.Session.State = StateTerminated
	m.mu.Unlock()

	ms.controller.Close()
	m.log.WithField("session", id).Info("session terminated")
	return nil
}

// Shutdown terminates all sessions.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Kill(id)
	}
}
