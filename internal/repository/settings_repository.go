package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"daily-tracker/internal/metrics"
	"daily-tracker/internal/model"
)

const settingsCollection = "settings"

// SettingsRepository stores the per-user reset configuration.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// FetchSettings returns model.ErrNotFound when the user has no settings yet.
func (r *SettingsRepository) FetchSettings(ctx context.Context, userID string) (*model.Settings, error) {
	timer := metrics.TrackStoreOperation("fetch", settingsCollection)
	defer timer.ObserveDuration()

	var settings model.Settings
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error; err != nil {
		if err = translateErr(err); err == model.ErrNotFound {
			return nil, err
		}
		metrics.TrackStoreError("fetch", settingsCollection)
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	return &settings, nil
}

func (r *SettingsRepository) CreateSettings(ctx context.Context, settings *model.Settings) error {
	timer := metrics.TrackStoreOperation("insert", settingsCollection)
	defer timer.ObserveDuration()

	if err := r.db.WithContext(ctx).Create(settings).Error; err != nil {
		metrics.TrackStoreError("insert", settingsCollection)
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

func (r *SettingsRepository) UpdateSettings(ctx context.Context, userID string, patch model.SettingsPatch) error {
	timer := metrics.TrackStoreOperation("update", settingsCollection)
	defer timer.ObserveDuration()

	if patch.Empty() {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&model.Settings{}).Where("user_id = ?", userID).Updates(patch.Fields())
	if res.Error != nil {
		metrics.TrackStoreError("update", settingsCollection)
		return fmt.Errorf("update settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}
