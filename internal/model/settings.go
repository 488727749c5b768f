package model

import "time"

// Settings stores the per-user reset configuration.
type Settings struct {
	UserID         string    `gorm:"primaryKey;size:36" bson:"_id" json:"user_id"`
	ResetHour      int       `gorm:"default:0" bson:"reset_hour" json:"reset_hour"`
	ResetMinute    int       `gorm:"default:0" bson:"reset_minute" json:"reset_minute"`
	LastResetDate  string    `bson:"last_reset_date" json:"last_reset_date"`
	LegacyMigrated bool      `gorm:"default:false" bson:"legacy_migrated" json:"legacy_migrated"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultSettings returns the record created on first session: midnight, never reset.
func DefaultSettings(userID string) Settings {
	return Settings{UserID: userID}
}

// SettingsPatch carries a partial settings update.
type SettingsPatch struct {
	ResetHour      *int
	ResetMinute    *int
	LastResetDate  *string
	LegacyMigrated *bool
}

func (p SettingsPatch) Apply(s *Settings) {
	if p.ResetHour != nil {
		s.ResetHour = *p.ResetHour
	}
	if p.ResetMinute != nil {
		s.ResetMinute = *p.ResetMinute
	}
	if p.LastResetDate != nil {
		s.LastResetDate = *p.LastResetDate
	}
	if p.LegacyMigrated != nil {
		s.LegacyMigrated = *p.LegacyMigrated
	}
}

func (p SettingsPatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.ResetHour != nil {
		fields["reset_hour"] = *p.ResetHour
	}
	if p.ResetMinute != nil {
		fields["reset_minute"] = *p.ResetMinute
	}
	if p.LastResetDate != nil {
		fields["last_reset_date"] = *p.LastResetDate
	}
	if p.LegacyMigrated != nil {
		fields["legacy_migrated"] = *p.LegacyMigrated
	}
	return fields
}

func (p SettingsPatch) Empty() bool {
	return p.ResetHour == nil && p.ResetMinute == nil && p.LastResetDate == nil && p.LegacyMigrated == nil
}
