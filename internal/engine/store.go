package engine

import (
	"context"
	"errors"

	"daily-tracker/internal/model"
)

var (
	// ErrSessionClosed is returned for work that targets a session after sign-out.
	ErrSessionClosed = errors.New("session closed")
	// ErrTaskNotFound is returned when an id does not name a task in the session.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAmbiguousID is returned when an id prefix matches more than one task.
	ErrAmbiguousID = errors.New("task id is ambiguous")
	// ErrToggleNotAllowed is returned when the task's category forbids the toggle.
	ErrToggleNotAllowed = errors.New("task cannot be toggled")
	// ErrNoPendingConfirmation is returned by Confirm* when nothing was requested.
	ErrNoPendingConfirmation = errors.New("nothing to confirm")
	// ErrValidation wraps input that was rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrRemote wraps a store failure after the optimistic change was rolled back.
	ErrRemote = errors.New("remote store failed")
)

// SettingsStore persists per-user settings. FetchSettings returns model.ErrNotFound when absent.
type SettingsStore interface {
	FetchSettings(ctx context.Context, userID string) (*model.Settings, error)
	CreateSettings(ctx context.Context, settings *model.Settings) error
	UpdateSettings(ctx context.Context, userID string, patch model.SettingsPatch) error
}

// TaskStore persists tasks. Every call is scoped to one user.
type TaskStore interface {
	FetchTasks(ctx context.Context, userID string) ([]model.Task, error)
	InsertTask(ctx context.Context, task *model.Task) (*model.Task, error)
	InsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) error
	ResetDailyTasks(ctx context.Context, userID string) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	UpsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error)
}
