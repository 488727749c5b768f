package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"daily-tracker/internal/model"
)

func TestManagerOpenBootstrapsOnce(t *testing.T) {
	h := newHarness(today(9, 0))
	m := NewManager(h.deps())

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Open(context.Background(), testUser)
			if err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		if s != sessions[0] {
			t.Fatal("Open returned different sessions for one user")
		}
		if s != nil && !s.Bootstrapped() {
			t.Fatal("Open returned a session before bootstrap finished")
		}
	}
	if n := h.store.count("FetchSettings"); n != 1 {
		t.Errorf("bootstrap ran %d times", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestManagerOpenIgnoresCancelledCaller(t *testing.T) {
	h := newHarness(today(9, 0))
	h.seedSettings(6, 0, "2026-10-15", true)
	h.seedTask("claim faucet", model.CategoryDaily, false)
	m := NewManager(h.deps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Open(ctx, testUser); err != nil {
		t.Fatalf("Open with cancelled context: %v", err)
	}

	s, err := m.Open(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := len(s.Tasks()); n != 1 {
		t.Errorf("tasks in memory = %d, want 1", n)
	}
	if rt := s.ResetTime(); rt.Hour != 6 {
		t.Errorf("reset hour = %d, want 6", rt.Hour)
	}
}

func TestManagerCloseStartsFreshSession(t *testing.T) {
	h := newHarness(today(9, 0))
	m := NewManager(h.deps())
	ctx := context.Background()

	first, err := m.Open(ctx, testUser)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !m.Close(testUser) {
		t.Fatal("Close reported no session")
	}
	if !first.Closed() {
		t.Fatal("session not closed")
	}
	if _, ok := m.Get(testUser); ok {
		t.Fatal("closed session still registered")
	}
	if _, err := first.Toggle(ctx, "any"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("closed session err = %v", err)
	}

	second, err := m.Open(ctx, testUser)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second == first {
		t.Fatal("reopen returned the closed session")
	}
	if n := h.store.count("FetchSettings"); n != 2 {
		t.Errorf("FetchSettings = %d, want a second bootstrap", n)
	}

	if _, err := m.Open(ctx, ""); err == nil {
		t.Error("empty user id accepted")
	}
}

func TestManagerTickAndCheckResets(t *testing.T) {
	h := newHarness(today(5, 0))
	h.seedSettings(6, 0, "2026-10-14", true)
	h.seedTask("claim", model.CategoryDaily, true)
	m := NewManager(h.deps())
	ctx := context.Background()

	s, err := m.Open(ctx, testUser)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := m.CheckResets(ctx); n != 0 {
		t.Fatalf("CheckResets before boundary = %d", n)
	}

	h.clock.Set(today(5, 30))
	m.Tick(h.clock.Now())
	if got := s.TimeUntilReset(); got.Minutes() != 30 {
		t.Errorf("countdown = %v, want 30m", got)
	}

	h.clock.Set(today(6, 0))
	if n := m.CheckResets(ctx); n != 1 {
		t.Fatalf("CheckResets at boundary = %d, want 1", n)
	}
	if s.StatsFor(model.CategoryDaily).Completed != 0 {
		t.Errorf("daily task not reset")
	}

	m.CloseAll()
	if m.Len() != 0 || !s.Closed() {
		t.Errorf("CloseAll left sessions open")
	}
}
