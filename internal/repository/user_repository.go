package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"daily-tracker/internal/model"
)

// TelegramUsers finds tracker users by their Telegram account.
type TelegramUsers interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

// ResolveUserID returns the tracker user id the engine is keyed by. An explicit userID wins;
// otherwise the Telegram account must already be known.
func ResolveUserID(ctx context.Context, users TelegramUsers, userID string, telegramID int64) (string, error) {
	if userID != "" {
		return userID, nil
	}
	if telegramID == 0 {
		return "", errors.New("resolve user: no user id or telegram id")
	}
	user, err := users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return "", fmt.Errorf("resolve telegram user %d: %w", telegramID, err)
	}
	return user.ID, nil
}

// UserRepository maps Telegram accounts onto tracker users in sqlite.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram returns the tracker user behind a Telegram account. First contact
// creates the user under a fresh tracker id; later calls only refresh the profile.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	profile := map[string]interface{}{
		"first_name": firstName,
		"last_name":  lastName,
		"username":   username,
	}

	var user model.User
	err := r.db.WithContext(ctx).
		Where(model.User{TelegramID: telegramID}).
		Attrs(model.User{ID: uuid.NewString()}).
		Assign(profile).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("upsert telegram user %d: %w", telegramID, err)
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

// ListAll returns every known user, oldest first, for the report job.
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
