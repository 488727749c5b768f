package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"daily-tracker/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	return db
}

func TestTaskRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	first, err := repo.InsertTask(ctx, &model.Task{UserID: "u1", Text: "first", Category: model.CategoryDaily, Status: model.StatusEarly})
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("insert did not assign id/createdAt: %+v", first)
	}
	second, err := repo.InsertTask(ctx, &model.Task{UserID: "u1", Text: "second", Category: model.CategoryNote, Status: model.StatusEarly, CreatedAt: first.CreatedAt.Add(time.Second)})
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if _, err := repo.InsertTask(ctx, &model.Task{UserID: "u2", Text: "other", Category: model.CategoryDaily}); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	tasks, err := repo.FetchTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != first.ID || tasks[1].ID != second.ID {
		t.Fatalf("FetchTasks = %+v", tasks)
	}

	at := time.Now()
	if err := repo.UpdateTask(ctx, "u1", first.ID, model.CompletionPatch(true, &at)); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if err := repo.UpdateTask(ctx, "u2", first.ID, model.CompletionPatch(true, &at)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user update err = %v, want ErrNotFound", err)
	}

	tasks, _ = repo.FetchTasks(ctx, "u1")
	if !tasks[0].Completed || tasks[0].CompletedAt == nil {
		t.Fatalf("task not completed: %+v", tasks[0])
	}

	if err := repo.ResetDailyTasks(ctx, "u1"); err != nil {
		t.Fatalf("ResetDailyTasks: %v", err)
	}
	tasks, _ = repo.FetchTasks(ctx, "u1")
	if tasks[0].Completed || tasks[0].CompletedAt != nil {
		t.Fatalf("daily task not reset: %+v", tasks[0])
	}

	if err := repo.DeleteTask(ctx, "u1", second.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := repo.DeleteTask(ctx, "u1", second.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
	tasks, _ = repo.FetchTasks(ctx, "u1")
	if len(tasks) != 1 {
		t.Fatalf("tasks after delete = %d, want 1", len(tasks))
	}
}

func TestResetDailyTasksLeavesNotesAlone(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	at := time.Now()
	note, err := repo.InsertTask(ctx, &model.Task{UserID: "u1", Text: "note", Category: model.CategoryNote, Completed: true, CompletedAt: &at})
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if err := repo.ResetDailyTasks(ctx, "u1"); err != nil {
		t.Fatalf("ResetDailyTasks: %v", err)
	}
	tasks, _ := repo.FetchTasks(ctx, "u1")
	if len(tasks) != 1 || tasks[0].ID != note.ID || !tasks[0].Completed {
		t.Fatalf("note was reset: %+v", tasks)
	}
}

func TestInsertTasksAssignsIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	created, err := repo.InsertTasks(ctx, "u1", []model.Task{
		{ID: "legacy-1", Text: "a", Category: model.CategoryDaily},
		{Text: "b", Category: model.CategoryTestnet},
	})
	if err != nil {
		t.Fatalf("InsertTasks: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d", len(created))
	}
	for _, task := range created {
		if task.ID == "" || task.ID == "legacy-1" || task.UserID != "u1" {
			t.Errorf("unexpected record %+v", task)
		}
	}
}

func TestUpsertTasks(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	mine, _ := repo.InsertTask(ctx, &model.Task{UserID: "u1", Text: "mine", Category: model.CategoryDaily})
	theirs, _ := repo.InsertTask(ctx, &model.Task{UserID: "u2", Text: "theirs", Category: model.CategoryDaily})

	out, err := repo.UpsertTasks(ctx, "u1", []model.Task{
		{ID: mine.ID, Text: "mine renamed", Category: model.CategoryDaily, Status: model.StatusOngoing, CreatedAt: mine.CreatedAt},
		{ID: theirs.ID, Text: "stolen", Category: model.CategoryNote},
		{Text: "fresh", Category: model.CategoryNote},
	})
	if err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}
	if out[0].ID != mine.ID {
		t.Errorf("own id changed to %s", out[0].ID)
	}
	if out[1].ID == theirs.ID || out[1].ID == "" {
		t.Errorf("foreign id was not re-keyed: %s", out[1].ID)
	}
	if out[2].ID == "" {
		t.Errorf("missing id not assigned")
	}

	tasks, _ := repo.FetchTasks(ctx, "u1")
	if len(tasks) != 3 {
		t.Fatalf("u1 tasks = %d, want 3", len(tasks))
	}
	if tasks[0].Text != "mine renamed" || tasks[0].Status != model.StatusOngoing {
		t.Errorf("upsert did not replace: %+v", tasks[0])
	}

	other, _ := repo.FetchTasks(ctx, "u2")
	if len(other) != 1 || other[0].Text != "theirs" {
		t.Fatalf("other user's task touched: %+v", other)
	}

	again, err := repo.UpsertTasks(ctx, "u1", tasks)
	if err != nil {
		t.Fatalf("second UpsertTasks: %v", err)
	}
	if len(again) != 3 {
		t.Fatalf("second upsert returned %d", len(again))
	}
	tasks, _ = repo.FetchTasks(ctx, "u1")
	if len(tasks) != 3 {
		t.Fatalf("re-upsert duplicated tasks: %d", len(tasks))
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	if _, err := repo.FetchSettings(ctx, "u1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FetchSettings err = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateSettings(ctx, "u1", model.SettingsPatch{LastResetDate: strPtr("2026-10-15")}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateSettings on missing err = %v", err)
	}

	defaults := model.DefaultSettings("u1")
	if err := repo.CreateSettings(ctx, &defaults); err != nil {
		t.Fatalf("CreateSettings: %v", err)
	}

	hour, minute, migrated := 6, 30, true
	if err := repo.UpdateSettings(ctx, "u1", model.SettingsPatch{ResetHour: &hour, ResetMinute: &minute, LegacyMigrated: &migrated}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	got, err := repo.FetchSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchSettings: %v", err)
	}
	if got.ResetHour != 6 || got.ResetMinute != 30 || !got.LegacyMigrated || got.LastResetDate != "" {
		t.Fatalf("settings = %+v", got)
	}

	zero := 0
	if err := repo.UpdateSettings(ctx, "u1", model.SettingsPatch{ResetHour: &zero}); err != nil {
		t.Fatalf("UpdateSettings zero: %v", err)
	}
	got, _ = repo.FetchSettings(ctx, "u1")
	if got.ResetHour != 0 {
		t.Fatalf("zero hour not written: %+v", got)
	}
}

func TestUserRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user, err := repo.UpsertFromTelegram(ctx, 42, "Ann", "", "ann")
	if err != nil {
		t.Fatalf("UpsertFromTelegram: %v", err)
	}
	if user.ID == "" {
		t.Fatal("user id not assigned")
	}
	again, err := repo.UpsertFromTelegram(ctx, 42, "Ann", "Lee", "ann")
	if err != nil {
		t.Fatalf("UpsertFromTelegram: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("id changed on update: %s != %s", again.ID, user.ID)
	}

	found, err := repo.FindByTelegramID(ctx, 42)
	if err != nil || found.LastName != "Lee" {
		t.Fatalf("FindByTelegramID = %+v, %v", found, err)
	}
	if _, err := repo.FindByTelegramID(ctx, 7); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}

	if _, err := repo.UpsertFromTelegram(ctx, 42, "Ann", "", "ann"); err != nil {
		t.Fatalf("UpsertFromTelegram: %v", err)
	}
	if found, _ := repo.FindByTelegramID(ctx, 42); found.LastName != "" {
		t.Errorf("last name not cleared: %q", found.LastName)
	}

	users, err := repo.ListAll(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListAll = %d, %v", len(users), err)
	}
}

func TestResolveUserID(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	user, err := repo.UpsertFromTelegram(ctx, 555, "Bob", "", "bob")
	if err != nil {
		t.Fatalf("UpsertFromTelegram: %v", err)
	}

	tests := []struct {
		name       string
		userID     string
		telegramID int64
		want       string
		wantErr    error
	}{
		{"explicit id wins", "explicit", 555, "explicit", nil},
		{"telegram account", "", 555, user.ID, nil},
		{"unknown account", "", 999, "", model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveUserID(ctx, repo, tt.userID, tt.telegramID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ResolveUserID = %q, %v; want %q", got, err, tt.want)
			}
		})
	}

	if _, err := ResolveUserID(ctx, repo, "", 0); err == nil {
		t.Error("empty identity accepted")
	}
}

func TestEnsureDirForSQLite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	if err := ensureDirForSQLite("file:" + filepath.Join(dir, "x.db") + "?cache=shared"); err != nil {
		t.Fatalf("ensureDirForSQLite: %v", err)
	}
	if err := ensureDirForSQLite(":memory:"); err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
}

func strPtr(s string) *string { return &s }
