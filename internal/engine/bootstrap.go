package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"daily-tracker/internal/metrics"
	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
)

// Bootstrap loads settings and tasks, migrates the legacy snapshot once and applies a due
// reset. It runs at most once per session. Store failures are logged and the session keeps
// whatever state could be loaded.
//
// Cancelling ctx does not abort the bootstrap: the session outlives the request that opened
// it. Each store call is still bounded by Deps.StoreTimeout.
func (s *Session) Bootstrap(ctx context.Context) {
	s.bootstrapOnce.Do(func() {
		s.bootstrap(context.WithoutCancel(ctx))
	})
}

func (s *Session) bootstrap(ctx context.Context) {
	unlock, err := s.begin()
	defer unlock()
	if err != nil {
		return
	}

	now := s.now()
	settings, settingsOK := s.loadSettings(ctx)
	tasks, tasksOK := s.loadTasks(ctx)

	if settingsOK && tasksOK && !settings.LegacyMigrated {
		tasks = s.migrateLegacy(ctx, &settings, tasks)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.st = state{tasks: tasks, settings: settings}
	s.settingsKnown = settingsOK
	s.refreshCountdownLocked(now)
	s.mu.Unlock()

	// Without settings the marker is unknown and a reset would be a guess.
	if settingsOK && resetclock.IsResetDue(settings.LastResetDate, settings.ResetHour, settings.ResetMinute, now) {
		if err := s.applyReset(ctx, "bootstrap", now); err != nil && !errors.Is(err, ErrSessionClosed) {
			log.Printf("[warn] bootstrap reset for user %s: %v", s.userID, err)
		}
	}

	s.mu.Lock()
	s.bootstrapped = true
	s.mu.Unlock()
	log.Printf("[info] session %s ready: %d tasks, reset at %02d:%02d", s.userID, len(tasks), settings.ResetHour, settings.ResetMinute)
}

func (s *Session) loadSettings(ctx context.Context) (model.Settings, bool) {
	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	settings, err := s.deps.Settings.FetchSettings(callCtx, s.userID)
	switch {
	case err == nil:
		out := *settings
		out.LastResetDate = resetclock.NormalizeMarker(out.LastResetDate, s.deps.Location)
		return out, true
	case errors.Is(err, model.ErrNotFound):
		defaults := model.DefaultSettings(s.userID)
		if err := s.deps.Settings.CreateSettings(callCtx, &defaults); err != nil {
			log.Printf("[warn] create settings for user %s: %v", s.userID, err)
		}
		return defaults, true
	default:
		log.Printf("[warn] fetch settings for user %s: %v", s.userID, err)
		return model.DefaultSettings(s.userID), false
	}
}

// reloadSettings replaces in-memory settings that bootstrap could not fetch.
// The caller must hold opMu.
func (s *Session) reloadSettings(ctx context.Context) bool {
	settings, ok := s.loadSettings(ctx)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.st.settings = settings
	s.settingsKnown = true
	s.refreshCountdownLocked(s.now())
	log.Printf("[info] settings for user %s reloaded, reset at %02d:%02d", s.userID, settings.ResetHour, settings.ResetMinute)
	return true
}

func (s *Session) loadTasks(ctx context.Context) ([]model.Task, bool) {
	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	tasks, err := s.deps.Tasks.FetchTasks(callCtx, s.userID)
	if err != nil {
		log.Printf("[warn] fetch tasks for user %s: %v", s.userID, err)
		return nil, false
	}
	return tasks, true
}

// migrateLegacy copies the legacy snapshot into an empty remote task set and records that
// migration is done. A failed insert leaves the flag unset so the next bootstrap retries.
func (s *Session) migrateLegacy(ctx context.Context, settings *model.Settings, tasks []model.Task) []model.Task {
	done := true
	patch := model.SettingsPatch{LegacyMigrated: &done}

	if len(tasks) == 0 {
		snap, err := s.deps.Legacy.Load(ctx, s.userID)
		if err != nil {
			log.Printf("[warn] load legacy snapshot for user %s: %v", s.userID, err)
			metrics.TrackMigration("failed")
			return tasks
		}
		if !snap.Empty() {
			callCtx, cancel := s.storeCtx(ctx)
			migrated, err := s.deps.Tasks.InsertTasks(callCtx, s.userID, snap.ToTasks(s.userID, s.now()))
			cancel()
			if err != nil {
				log.Printf("[warn] migrate legacy tasks for user %s: %v", s.userID, err)
				metrics.TrackMigration("failed")
				return tasks
			}
			tasks = migrated
			rt := snap.ResetTime.Clamp()
			patch.ResetHour = &rt.Hour
			patch.ResetMinute = &rt.Minute
			metrics.TrackMigration("migrated")
			log.Printf("[info] migrated %d legacy tasks for user %s", len(migrated), s.userID)
		} else {
			metrics.TrackMigration("skipped")
		}
	} else {
		metrics.TrackMigration("skipped")
	}

	patch.Apply(settings)
	callCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.deps.Settings.UpdateSettings(callCtx, s.userID, patch); err != nil {
		log.Printf("[warn] record migration for user %s: %v", s.userID, err)
	}
	return tasks
}

// applyReset clears completion on every reset-eligible task and advances the marker.
// The caller must hold opMu.
func (s *Session) applyReset(ctx context.Context, trigger string, now time.Time) error {
	var marker string
	err := s.run(ctx, mutation{
		name: "reset",
		apply: func(st *state) {
			clearDaily(st.tasks)
			rt := resetTimeOf(st.settings)
			marker = resetclock.LaterMarker(st.settings.LastResetDate, resetclock.ResetMarkerFor(rt.Hour, rt.Minute, now), s.deps.Location)
			st.settings.LastResetDate = marker
		},
		commit: func(ctx context.Context) error {
			if err := s.deps.Tasks.ResetDailyTasks(ctx, s.userID); err != nil {
				return err
			}
			if err := s.deps.Settings.UpdateSettings(ctx, s.userID, model.SettingsPatch{LastResetDate: &marker}); err != nil {
				// tasks are cleared; a stale marker only repeats the reset later
				log.Printf("[warn] save reset marker for user %s: %v", s.userID, err)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	metrics.TrackReset(trigger)
	log.Printf("[info] daily tasks reset for user %s (%s), marker %s", s.userID, trigger, marker)
	return nil
}

func clearDaily(tasks []model.Task) {
	for i := range tasks {
		if tasks[i].Category.ResetEligible() {
			tasks[i].SetCompleted(false, time.Time{})
		}
	}
}
