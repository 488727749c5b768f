package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"daily-tracker/internal/metrics"
	"daily-tracker/internal/model"
)

const tasksCollection = "tasks"

// TaskRepository handles CRUD for tasks. Every query is scoped to one user.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FetchTasks returns the user's tasks in creation order.
func (r *TaskRepository) FetchTasks(ctx context.Context, userID string) ([]model.Task, error) {
	timer := metrics.TrackStoreOperation("fetch", tasksCollection)
	defer timer.ObserveDuration()

	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error; err != nil {
		metrics.TrackStoreError("fetch", tasksCollection)
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return tasks, nil
}

// InsertTask stores a new task and returns the canonical record with its assigned id.
func (r *TaskRepository) InsertTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	timer := metrics.TrackStoreOperation("insert", tasksCollection)
	defer timer.ObserveDuration()

	created := *task
	created.ID = uuid.NewString()
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		metrics.TrackStoreError("insert", tasksCollection)
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &created, nil
}

// InsertTasks stores tasks for userID in one transaction, assigning fresh ids.
func (r *TaskRepository) InsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error) {
	timer := metrics.TrackStoreOperation("insert_many", tasksCollection)
	defer timer.ObserveDuration()

	if len(tasks) == 0 {
		return nil, nil
	}
	created := make([]model.Task, len(tasks))
	for i, task := range tasks {
		task.ID = uuid.NewString()
		task.UserID = userID
		created[i] = task
	}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		metrics.TrackStoreError("insert_many", tasksCollection)
		return nil, fmt.Errorf("create tasks: %w", err)
	}
	return created, nil
}

// UpdateTask applies patch to one of the user's tasks.
func (r *TaskRepository) UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) error {
	timer := metrics.TrackStoreOperation("update", tasksCollection)
	defer timer.ObserveDuration()

	fields := patch.Fields()
	db := r.db.WithContext(ctx).Model(&model.Task{}).Where("user_id = ? AND id = ?", userID, taskID)
	if len(fields) == 0 {
		var count int64
		if err := db.Count(&count).Error; err != nil {
			return fmt.Errorf("find task: %w", err)
		}
		if count == 0 {
			return model.ErrNotFound
		}
		return nil
	}

	res := db.Updates(fields)
	if res.Error != nil {
		metrics.TrackStoreError("update", tasksCollection)
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ResetDailyTasks clears completion on every daily task of the user.
func (r *TaskRepository) ResetDailyTasks(ctx context.Context, userID string) error {
	timer := metrics.TrackStoreOperation("reset", tasksCollection)
	defer timer.ObserveDuration()

	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND category = ?", userID, model.CategoryDaily).
		Updates(map[string]interface{}{"completed": false, "completed_at": nil}).Error; err != nil {
		metrics.TrackStoreError("reset", tasksCollection)
		return fmt.Errorf("reset daily tasks: %w", err)
	}
	return nil
}

// DeleteTask removes a task for the given user.
func (r *TaskRepository) DeleteTask(ctx context.Context, userID, taskID string) error {
	timer := metrics.TrackStoreOperation("delete", tasksCollection)
	defer timer.ObserveDuration()

	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
	if res.Error != nil {
		metrics.TrackStoreError("delete", tasksCollection)
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// UpsertTasks inserts or replaces tasks by id for userID. Ids that belong to another user
// or are missing get a fresh id, so another user's record is never overwritten.
func (r *TaskRepository) UpsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error) {
	timer := metrics.TrackStoreOperation("upsert", tasksCollection)
	defer timer.ObserveDuration()

	if len(tasks) == 0 {
		return nil, nil
	}

	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(out))
		for _, task := range out {
			if task.ID != "" {
				ids = append(ids, task.ID)
			}
		}

		foreign := make(map[string]struct{})
		if len(ids) > 0 {
			var taken []string
			if err := tx.Model(&model.Task{}).
				Where("id IN ? AND user_id <> ?", ids, userID).
				Pluck("id", &taken).Error; err != nil {
				return fmt.Errorf("check task owners: %w", err)
			}
			for _, id := range taken {
				foreign[id] = struct{}{}
			}
		}

		seen := make(map[string]struct{}, len(out))
		for i := range out {
			_, isForeign := foreign[out[i].ID]
			_, dup := seen[out[i].ID]
			if out[i].ID == "" || isForeign || dup {
				out[i].ID = uuid.NewString()
			}
			seen[out[i].ID] = struct{}{}
			out[i].UserID = userID
		}

		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&out).Error; err != nil {
			return fmt.Errorf("upsert tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.TrackStoreError("upsert", tasksCollection)
		return nil, err
	}
	return out, nil
}
