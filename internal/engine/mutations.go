package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
	"daily-tracker/internal/transfer"
)

const placeholderPrefix = "pending-"

// Add validates in, shows the task immediately under a temporary id and replaces it with
// the stored record once the store answers.
func (s *Session) Add(ctx context.Context, in TaskInput) (model.Task, error) {
	in.normalize()
	if err := validateInput(&in); err != nil {
		return model.Task{}, err
	}
	if in.Status == "" {
		in.Status = model.StatusEarly
	}

	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return model.Task{}, err
	}

	draft := model.Task{
		ID:          placeholderPrefix + uuid.NewString(),
		UserID:      s.userID,
		Text:        in.Text,
		Category:    in.Category,
		Status:      in.Status,
		Link:        in.Link,
		Website:     in.Website,
		Twitter:     in.Twitter,
		Discord:     in.Discord,
		Telegram:    in.Telegram,
		Description: in.Description,
		CreatedAt:   s.now(),
	}

	var created *model.Task
	err = s.run(ctx, mutation{
		name: "add",
		apply: func(st *state) {
			st.tasks = append(st.tasks, draft)
		},
		commit: func(ctx context.Context) error {
			record := draft
			record.ID = ""
			record.CreatedAt = time.Time{}
			stored, err := s.deps.Tasks.InsertTask(ctx, &record)
			if err != nil {
				return err
			}
			created = stored
			return nil
		},
		settle: func(st *state) {
			if i := st.index(draft.ID); i >= 0 {
				st.tasks[i] = *created
			}
		},
	})
	if err != nil {
		return model.Task{}, err
	}
	return *created, nil
}

// Toggle flips completion of a task whose category allows it. Completed daily tasks are
// rejected before anything changes.
func (s *Session) Toggle(ctx context.Context, id string) (model.Task, error) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return model.Task{}, err
	}
	return s.toggle(ctx, id)
}

// toggle requires opMu.
func (s *Session) toggle(ctx context.Context, id string) (model.Task, error) {
	s.mu.RLock()
	task, err := s.lookupLocked(id)
	s.mu.RUnlock()
	if err != nil {
		return model.Task{}, err
	}
	if !task.Category.CanToggle(task.Completed) {
		return task, fmt.Errorf("%w: %s task %q", ErrToggleNotAllowed, task.Category, task.Text)
	}

	updated := task
	updated.SetCompleted(!task.Completed, s.now())
	err = s.run(ctx, mutation{
		name: "toggle",
		apply: func(st *state) {
			if i := st.index(id); i >= 0 {
				st.tasks[i] = updated
			}
		},
		commit: func(ctx context.Context) error {
			return s.deps.Tasks.UpdateTask(ctx, s.userID, id, model.CompletionPatch(updated.Completed, updated.CompletedAt))
		},
	})
	if err != nil {
		return task, err
	}
	return updated, nil
}

// ToggleOutcome reports what RequestToggle did.
type ToggleOutcome struct {
	Task model.Task `json:"task"`
	// NeedsConfirmation means nothing changed yet; call ConfirmToggle or CancelToggle.
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// RequestToggle toggles note tasks right away and parks daily tasks until ConfirmToggle.
func (s *Session) RequestToggle(ctx context.Context, id string) (ToggleOutcome, error) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return ToggleOutcome{}, err
	}

	s.mu.Lock()
	task, err := s.lookupLocked(id)
	if err != nil {
		s.mu.Unlock()
		return ToggleOutcome{}, err
	}
	if !task.Category.CanToggle(task.Completed) {
		s.mu.Unlock()
		return ToggleOutcome{Task: task}, fmt.Errorf("%w: %s task %q", ErrToggleNotAllowed, task.Category, task.Text)
	}
	if task.Category.NeedsConfirmation() {
		s.pendingToggle = id
		s.mu.Unlock()
		return ToggleOutcome{Task: task, NeedsConfirmation: true}, nil
	}
	s.mu.Unlock()

	updated, err := s.toggle(ctx, id)
	return ToggleOutcome{Task: updated}, err
}

// ConfirmToggle applies the toggle parked by RequestToggle.
func (s *Session) ConfirmToggle(ctx context.Context) (model.Task, error) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return model.Task{}, err
	}

	s.mu.Lock()
	id := s.pendingToggle
	s.pendingToggle = ""
	s.mu.Unlock()
	if id == "" {
		return model.Task{}, ErrNoPendingConfirmation
	}
	return s.toggle(ctx, id)
}

// CancelToggle drops a parked toggle, if any.
func (s *Session) CancelToggle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingToggle = ""
}

// PendingToggle returns the id waiting for confirmation, or "".
func (s *Session) PendingToggle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingToggle
}

// RequestDelete parks a delete until ConfirmDelete. Nothing is removed yet.
func (s *Session) RequestDelete(id string) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Task{}, ErrSessionClosed
	}
	task, err := s.lookupLocked(id)
	if err != nil {
		return model.Task{}, err
	}
	s.pendingDelete = id
	return task, nil
}

// ConfirmDelete removes the task parked by RequestDelete.
func (s *Session) ConfirmDelete(ctx context.Context) (model.Task, error) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return model.Task{}, err
	}

	s.mu.Lock()
	id := s.pendingDelete
	s.pendingDelete = ""
	task, lookupErr := s.lookupLocked(id)
	s.mu.Unlock()
	if id == "" {
		return model.Task{}, ErrNoPendingConfirmation
	}
	if lookupErr != nil {
		return model.Task{}, lookupErr
	}

	err = s.run(ctx, mutation{
		name: "delete",
		apply: func(st *state) {
			if i := st.index(id); i >= 0 {
				st.tasks = append(st.tasks[:i], st.tasks[i+1:]...)
			}
		},
		commit: func(ctx context.Context) error {
			return s.deps.Tasks.DeleteTask(ctx, s.userID, id)
		},
	})
	if err != nil {
		return task, err
	}
	return task, nil
}

// CancelDelete drops a parked delete, if any.
func (s *Session) CancelDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingDelete = ""
}

// PendingDelete returns the id waiting for confirmation, or "".
func (s *Session) PendingDelete() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingDelete
}

// Edit replaces the editable fields of a task after validation.
func (s *Session) Edit(ctx context.Context, id string, in EditInput) (model.Task, error) {
	in.normalize()
	if err := validateInput(&in); err != nil {
		return model.Task{}, err
	}

	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return model.Task{}, err
	}

	s.mu.RLock()
	task, err := s.lookupLocked(id)
	s.mu.RUnlock()
	if err != nil {
		return model.Task{}, err
	}

	status := task.Status
	if in.Status != "" {
		status = in.Status
	}
	patch := model.TaskPatch{
		Text:        &in.Text,
		Status:      &status,
		Link:        &in.Link,
		Website:     &in.Website,
		Twitter:     &in.Twitter,
		Discord:     &in.Discord,
		Telegram:    &in.Telegram,
		Description: &in.Description,
	}
	updated := task
	patch.Apply(&updated)

	err = s.run(ctx, mutation{
		name: "edit",
		apply: func(st *state) {
			if i := st.index(id); i >= 0 {
				st.tasks[i] = updated
			}
		},
		commit: func(ctx context.Context) error {
			return s.deps.Tasks.UpdateTask(ctx, s.userID, id, patch)
		},
	})
	if err != nil {
		return task, err
	}
	return updated, nil
}

// SetResetTime changes the daily reset time and recomputes the countdown. It does not
// apply a reset by itself.
func (s *Session) SetResetTime(ctx context.Context, rt resetclock.ResetTime) error {
	if !rt.Valid() {
		return fmt.Errorf("%w: reset time %d:%d out of range", ErrValidation, rt.Hour, rt.Minute)
	}
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return err
	}
	return s.setResetTime(ctx, rt)
}

func (s *Session) setResetTime(ctx context.Context, rt resetclock.ResetTime) error {
	return s.run(ctx, mutation{
		name: "reset_time",
		apply: func(st *state) {
			st.settings.ResetHour = rt.Hour
			st.settings.ResetMinute = rt.Minute
		},
		commit: func(ctx context.Context) error {
			return s.deps.Settings.UpdateSettings(ctx, s.userID, model.SettingsPatch{ResetHour: &rt.Hour, ResetMinute: &rt.Minute})
		},
	})
}

// ResetNow clears every daily task regardless of the boundary and advances the marker.
func (s *Session) ResetNow(ctx context.Context) error {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return err
	}
	return s.applyReset(ctx, "manual", s.now())
}

// CheckReset applies a reset when a boundary was crossed since the last one.
// It reports whether a reset was applied. Settings that bootstrap could not fetch are
// fetched first; while they stay unknown no reset is applied.
func (s *Session) CheckReset(ctx context.Context) (bool, error) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	ready, known := s.bootstrapped, s.settingsKnown
	s.mu.RUnlock()
	if !ready {
		return false, nil
	}
	if !known && !s.reloadSettings(ctx) {
		return false, nil
	}

	now := s.now()
	s.mu.RLock()
	settings := s.st.settings
	s.mu.RUnlock()
	if !resetclock.IsResetDue(settings.LastResetDate, settings.ResetHour, settings.ResetMinute, now) {
		return false, nil
	}
	if err := s.applyReset(ctx, "periodic", now); err != nil {
		return false, err
	}
	return true, nil
}

// Export builds the export document for the in-memory state.
func (s *Session) Export() transfer.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]model.Task, 0, len(s.st.tasks))
	for _, task := range s.st.tasks {
		if strings.HasPrefix(task.ID, placeholderPrefix) {
			continue
		}
		tasks = append(tasks, task)
	}
	return transfer.NewDocument(tasks, resetTimeOf(s.st.settings), s.now())
}

// Import upserts every task of doc by id for this user and merges the stored records into
// memory. Form validation does not apply. A reset time in doc replaces the current one.
func (s *Session) Import(ctx context.Context, doc transfer.Document) ([]model.Task, error) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return nil, err
	}

	incoming := doc.ToTasks(s.userID, s.now())
	var stored []model.Task
	err = s.run(ctx, mutation{
		name: "import",
		commit: func(ctx context.Context) error {
			out, err := s.deps.Tasks.UpsertTasks(ctx, s.userID, incoming)
			if err != nil {
				return err
			}
			stored = out
			return nil
		},
		settle: func(st *state) {
			for _, task := range stored {
				if i := st.index(task.ID); i >= 0 {
					st.tasks[i] = task
					continue
				}
				st.tasks = append(st.tasks, task)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[info] imported %d tasks for user %s", len(stored), s.userID)

	if doc.CustomResetTime != nil {
		if err := s.setResetTime(ctx, doc.CustomResetTime.Clamp()); err != nil {
			return stored, fmt.Errorf("apply imported reset time: %w", err)
		}
	}
	return stored, nil
}
