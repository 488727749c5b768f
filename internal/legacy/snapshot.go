// Package legacy reads the browser-storage snapshot left behind by the old single-device app.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
	"daily-tracker/internal/transfer"
)

// Keys used by the old app in browser storage.
const (
	TasksKey     = "daily-task-tracker-tasks"
	ResetTimeKey = "daily-task-tracker-custom-reset-time"
	LastResetKey = "daily-task-tracker-last-reset"
)

// Snapshot is what the old app kept locally for one user.
type Snapshot struct {
	Tasks     []transfer.Record
	ResetTime resetclock.ResetTime
	LastReset string
}

// Empty reports whether there is nothing to migrate.
func (s Snapshot) Empty() bool {
	return len(s.Tasks) == 0
}

// ToTasks converts the snapshot records into tasks for userID. Records with blank text are skipped.
func (s Snapshot) ToTasks(userID string, now time.Time) []model.Task {
	tasks := make([]model.Task, 0, len(s.Tasks))
	for _, rec := range s.Tasks {
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		task := rec.ToTask(userID, now)
		// the store assigns fresh ids on migration
		task.ID = ""
		tasks = append(tasks, task)
	}
	return tasks
}

// Source loads the legacy snapshot for a user.
type Source interface {
	Load(ctx context.Context, userID string) (Snapshot, error)
}

// NoopSource never has anything to migrate.
type NoopSource struct{}

func (NoopSource) Load(context.Context, string) (Snapshot, error) {
	return Snapshot{}, nil
}

// FileSource reads <Dir>/<userID>.json, a JSON object of browser-storage keys.
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Load returns an empty snapshot when the user has no file.
func (s *FileSource) Load(ctx context.Context, userID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if userID == "" || strings.ContainsAny(userID, `/\`) || strings.Contains(userID, "..") {
		return Snapshot{}, fmt.Errorf("invalid legacy user id %q", userID)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir, userID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("read legacy snapshot: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a storage dump. Values may be stored as JSON-encoded strings, the way
// localStorage keeps them, or inline as raw JSON.
func Parse(raw []byte) (Snapshot, error) {
	var storage map[string]json.RawMessage
	if err := json.Unmarshal(raw, &storage); err != nil {
		return Snapshot{}, fmt.Errorf("decode legacy snapshot: %w", err)
	}

	var snap Snapshot
	if value, ok := storage[TasksKey]; ok {
		if err := decodeValue(value, &snap.Tasks); err != nil {
			return Snapshot{}, fmt.Errorf("decode legacy tasks: %w", err)
		}
	}

	if value, ok := storage[ResetTimeKey]; ok {
		var rt resetclock.ResetTime
		if err := decodeValue(value, &rt); err != nil {
			log.Printf("[warn] legacy reset time unreadable, using midnight: %v", err)
		} else {
			snap.ResetTime = rt.Clamp()
		}
	}

	if value, ok := storage[LastResetKey]; ok {
		var marker string
		if err := json.Unmarshal(value, &marker); err == nil {
			snap.LastReset = strings.TrimSpace(marker)
		}
	}
	return snap, nil
}

// decodeValue unwraps a string-encoded value before decoding it into dst.
func decodeValue(value json.RawMessage, dst interface{}) error {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(value, &inner); err != nil {
			return err
		}
		if strings.TrimSpace(inner) == "" {
			return nil
		}
		return json.Unmarshal([]byte(inner), dst)
	}
	return json.Unmarshal(value, dst)
}
