package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"daily-tracker/internal/metrics"
)

// Manager owns the open sessions, one per user.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// Open returns the user's session, creating and bootstrapping it on first use.
// Concurrent callers for the same user wait for the same bootstrap.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("open session: empty user id")
	}

	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = NewSession(userID, m.deps)
		m.sessions[userID] = s
		metrics.SetActiveSessions(len(m.sessions))
	}
	m.mu.Unlock()

	s.Bootstrap(ctx)
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Get returns an open session without creating one.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close signs the user out. A later Open starts a fresh session with a new bootstrap.
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	metrics.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	if ok {
		s.Close()
		log.Printf("[info] session %s closed", userID)
	}
	return ok
}

func (m *Manager) CloseAll() {
	for _, s := range m.snapshot() {
		m.Close(s.UserID())
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Tick refreshes the countdown of every open session.
func (m *Manager) Tick(now time.Time) {
	for _, s := range m.snapshot() {
		s.Tick(now)
	}
}

// CheckResets applies due resets across open sessions and returns how many were applied.
func (m *Manager) CheckResets(ctx context.Context) int {
	applied := 0
	for _, s := range m.snapshot() {
		ok, err := s.CheckReset(ctx)
		if err != nil {
			if !errors.Is(err, ErrSessionClosed) {
				log.Printf("[warn] periodic reset for user %s: %v", s.UserID(), err)
			}
			continue
		}
		if ok {
			applied++
		}
	}
	return applied
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
