// Package engine keeps one user's tasks and reset settings in memory and reconciles them with
// the remote store: bootstrap with migration and daily reset, optimistic mutations with
// rollback, and the two-step confirm flows used by the presentation layers.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"daily-tracker/internal/legacy"
	"daily-tracker/internal/metrics"
	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Tasks    TaskStore
	Settings SettingsStore
	Legacy   legacy.Source
	// Location is the wall clock reset boundaries are computed in. Defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
	// StoreTimeout bounds each remote call. Zero means no extra bound.
	StoreTimeout time.Duration
}

type state struct {
	tasks    []model.Task
	settings model.Settings
}

func (st state) clone() state {
	tasks := make([]model.Task, len(st.tasks))
	copy(tasks, st.tasks)
	return state{tasks: tasks, settings: st.settings}
}

func (st *state) index(id string) int {
	for i := range st.tasks {
		if st.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Session is the engine's state for one signed-in user. It is created at sign-in,
// bootstrapped once and closed at sign-out.
type Session struct {
	userID string
	deps   Deps

	bootstrapOnce sync.Once

	// opMu serializes mutations; mu guards everything below.
	opMu sync.Mutex
	mu   sync.RWMutex

	st            state
	countdown     time.Duration
	closed        bool
	bootstrapped  bool
	settingsKnown bool
	pendingToggle string
	pendingDelete string
}

// NewSession creates an empty session. Call Bootstrap before use.
func NewSession(userID string, deps Deps) *Session {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Legacy == nil {
		deps.Legacy = legacy.NoopSource{}
	}
	s := &Session{userID: userID, deps: deps}
	s.st.settings = model.DefaultSettings(userID)
	return s
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) now() time.Time {
	return s.deps.Now().In(s.deps.Location)
}

func (s *Session) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.StoreTimeout > 0 {
		return context.WithTimeout(ctx, s.deps.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

// Tasks returns a copy of the in-memory task list in creation order.
func (s *Session) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, len(s.st.tasks))
	copy(out, s.st.tasks)
	return out
}

// Settings returns a copy of the in-memory settings.
func (s *Session) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.settings
}

func (s *Session) ResetTime() resetclock.ResetTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resetTimeOf(s.st.settings)
}

// TimeUntilReset returns the countdown as of the last Tick or state change.
func (s *Session) TimeUntilReset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countdown
}

// Tick recomputes the countdown. It never applies a reset.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.refreshCountdownLocked(now)
}

func (s *Session) Bootstrapped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapped
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close ends the session. Remote calls still in flight finish but their results are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pendingToggle = ""
	s.pendingDelete = ""
}

func (s *Session) refreshCountdownLocked(now time.Time) {
	rt := resetTimeOf(s.st.settings)
	s.countdown = resetclock.TimeUntilNextBoundary(rt.Hour, rt.Minute, now.In(s.deps.Location))
}

func resetTimeOf(settings model.Settings) resetclock.ResetTime {
	return resetclock.ResetTime{Hour: settings.ResetHour, Minute: settings.ResetMinute}
}

// mutation is one optimistic change: apply runs locally first, commit talks to the store,
// settle runs only after a successful commit.
type mutation struct {
	name   string
	apply  func(st *state)
	commit func(ctx context.Context) error
	settle func(st *state)
}

// run executes m with snapshot/rollback. The caller must hold opMu.
func (s *Session) run(ctx context.Context, m mutation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	snapshot := s.st.clone()
	if m.apply != nil {
		m.apply(&s.st)
	}
	s.mu.Unlock()

	callCtx, cancel := s.storeCtx(ctx)
	err := m.commit(callCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Printf("[info] session %s closed before %s finished, result dropped", s.userID, m.name)
		return ErrSessionClosed
	}
	if err != nil {
		s.st = snapshot
		s.refreshCountdownLocked(s.now())
		metrics.TrackTaskOperation(m.name, false)
		log.Printf("[warn] %s failed for user %s, rolled back: %v", m.name, s.userID, err)
		return fmt.Errorf("%s: %w: %w", m.name, ErrRemote, err)
	}
	if m.settle != nil {
		m.settle(&s.st)
	}
	s.refreshCountdownLocked(s.now())
	metrics.TrackTaskOperation(m.name, true)
	return nil
}

// lookupLocked finds a task by exact id. The caller must hold mu.
func (s *Session) lookupLocked(id string) (model.Task, error) {
	if i := s.st.index(id); i >= 0 {
		return s.st.tasks[i], nil
	}
	return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// begin takes the operation lock and reports whether the session can still be used.
func (s *Session) begin() (func(), error) {
	s.opMu.Lock()
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		s.opMu.Unlock()
		return func() {}, ErrSessionClosed
	}
	return s.opMu.Unlock, nil
}
