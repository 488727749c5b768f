package model

import "time"

// User stores Telegram user metadata. ID is the identity the engine is keyed by.
type User struct {
	ID         string    `gorm:"primaryKey;size:36" bson:"_id"`
	TelegramID int64     `gorm:"uniqueIndex" bson:"telegram_id"`
	FirstName  string    `bson:"first_name"`
	LastName   string    `bson:"last_name"`
	Username   string    `bson:"username"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}
