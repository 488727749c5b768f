package legacy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"daily-tracker/internal/resetclock"
)

func TestParseStringEncodedValues(t *testing.T) {
	raw := `{
		"daily-task-tracker-tasks": "[{\"id\":\"1\",\"text\":\"claim\",\"type\":\"daily\",\"completed\":true,\"createdAt\":1760000000000},{\"id\":\"2\",\"text\":\"read\",\"type\":\"note\",\"completed\":false,\"createdAt\":1760000001000}]",
		"daily-task-tracker-custom-reset-time": "{\"hour\":6,\"minute\":30}",
		"daily-task-tracker-last-reset": "Wed Oct 14 2026"
	}`

	snap, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(snap.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(snap.Tasks))
	}
	if snap.ResetTime != (resetclock.ResetTime{Hour: 6, Minute: 30}) {
		t.Errorf("reset time = %+v", snap.ResetTime)
	}
	if snap.LastReset != "Wed Oct 14 2026" {
		t.Errorf("last reset = %q", snap.LastReset)
	}
}

func TestParseRawValuesAndClamp(t *testing.T) {
	raw := `{
		"daily-task-tracker-tasks": [{"text":"a","type":"testnet","completed":false}],
		"daily-task-tracker-custom-reset-time": {"hour": 42, "minute": -3}
	}`

	snap, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Type != "testnet" {
		t.Errorf("tasks = %+v", snap.Tasks)
	}
	if snap.ResetTime != (resetclock.ResetTime{Hour: 23, Minute: 0}) {
		t.Errorf("reset time = %+v, want clamped 23:00", snap.ResetTime)
	}
}

func TestParseUnreadableResetTimeFallsBackToMidnight(t *testing.T) {
	snap, err := Parse([]byte(`{"daily-task-tracker-custom-reset-time": "not json"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.ResetTime != (resetclock.ResetTime{}) {
		t.Errorf("reset time = %+v, want midnight", snap.ResetTime)
	}
	if !snap.Empty() {
		t.Errorf("snapshot without tasks should be empty")
	}
}

func TestParseRejectsBrokenTasks(t *testing.T) {
	if _, err := Parse([]byte(`{"daily-task-tracker-tasks": "[{"}`)); err == nil {
		t.Fatal("expected error for broken task list")
	}
	if _, err := Parse([]byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for non-object dump")
	}
}

func TestSnapshotToTasksDropsIDsAndBlankText(t *testing.T) {
	snap, err := Parse([]byte(`{"daily-task-tracker-tasks": [
		{"id":"old-1","text":"keep","type":"daily"},
		{"id":"old-2","text":"   ","type":"note"}
	]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tasks := snap.ToTasks("user-1", time.Now())
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	if tasks[0].ID != "" {
		t.Errorf("id = %q, want empty so the store assigns one", tasks[0].ID)
	}
	if tasks[0].UserID != "user-1" {
		t.Errorf("owner = %q", tasks[0].UserID)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	src := NewFileSource(dir)
	ctx := context.Background()

	snap, err := src.Load(ctx, "nobody")
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if !snap.Empty() {
		t.Errorf("missing file should give empty snapshot")
	}

	body := `{"daily-task-tracker-tasks": "[{\"text\":\"x\",\"type\":\"daily\"}]"}`
	if err := os.WriteFile(filepath.Join(dir, "user-1.json"), []byte(body), 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	snap, err = src.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Tasks) != 1 {
		t.Errorf("tasks = %d, want 1", len(snap.Tasks))
	}

	if _, err := src.Load(ctx, "../etc/passwd"); err == nil {
		t.Errorf("expected error for path-like user id")
	}
}
