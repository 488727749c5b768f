package engine

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"daily-tracker/internal/legacy"
	"daily-tracker/internal/model"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory TaskStore and SettingsStore with per-method failure switches.
type fakeStore struct {
	mu       sync.Mutex
	tasks    map[string]model.Task
	settings map[string]model.Settings
	seq      int
	now      func() time.Time

	calls    map[string]int
	fail     map[string]error
	inserted []model.Task
	// block, when set for a method, is waited on before the method returns.
	block map[string]chan struct{}
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		tasks:    make(map[string]model.Task),
		settings: make(map[string]model.Settings),
		now:      now,
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		block:    make(map[string]chan struct{}),
	}
}

func (f *fakeStore) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	err := f.fail[method]
	ch := f.block[method]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (f *fakeStore) setFail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *fakeStore) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeStore) nextID() string {
	f.seq++
	return "task-" + strconv.Itoa(f.seq)
}

func (f *fakeStore) put(task model.Task) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == "" {
		task.ID = f.nextID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = f.now().Add(time.Duration(f.seq) * time.Millisecond)
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeStore) userTasks(userID string) []model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Task
	for _, task := range f.tasks {
		if task.UserID == userID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) FetchSettings(ctx context.Context, userID string) (*model.Settings, error) {
	if err := f.enter(ctx, "FetchSettings"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) CreateSettings(ctx context.Context, settings *model.Settings) error {
	if err := f.enter(ctx, "CreateSettings"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[settings.UserID] = *settings
	return nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, userID string, patch model.SettingsPatch) error {
	if err := f.enter(ctx, "UpdateSettings"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[userID]
	if !ok {
		return model.ErrNotFound
	}
	patch.Apply(&s)
	f.settings[userID] = s
	return nil
}

func (f *fakeStore) FetchTasks(ctx context.Context, userID string) ([]model.Task, error) {
	if err := f.enter(ctx, "FetchTasks"); err != nil {
		return nil, err
	}
	return f.userTasks(userID), nil
}

func (f *fakeStore) InsertTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	if err := f.enter(ctx, "InsertTask"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.inserted = append(f.inserted, *task)
	f.mu.Unlock()
	record := *task
	record.ID = ""
	stored := f.put(record)
	return &stored, nil
}

func (f *fakeStore) InsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error) {
	if err := f.enter(ctx, "InsertTasks"); err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		task.ID = ""
		task.UserID = userID
		out = append(out, f.put(task))
	}
	return out, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) error {
	if err := f.enter(ctx, "UpdateTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok || task.UserID != userID {
		return model.ErrNotFound
	}
	patch.Apply(&task)
	f.tasks[taskID] = task
	return nil
}

func (f *fakeStore) ResetDailyTasks(ctx context.Context, userID string) error {
	if err := f.enter(ctx, "ResetDailyTasks"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, task := range f.tasks {
		if task.UserID == userID && task.Category == model.CategoryDaily {
			task.SetCompleted(false, time.Time{})
			f.tasks[id] = task
		}
	}
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := f.enter(ctx, "DeleteTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok || task.UserID != userID {
		return model.ErrNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) UpsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error) {
	if err := f.enter(ctx, "UpsertTasks"); err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		f.mu.Lock()
		existing, taken := f.tasks[task.ID]
		f.mu.Unlock()
		if taken && existing.UserID != userID {
			task.ID = ""
		}
		task.UserID = userID
		out = append(out, f.put(task))
	}
	return out, nil
}

// fakeLegacy serves a fixed snapshot.
type fakeLegacy struct {
	snap  legacy.Snapshot
	err   error
	loads int
}

func (f *fakeLegacy) Load(context.Context, string) (legacy.Snapshot, error) {
	f.loads++
	return f.snap, f.err
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
