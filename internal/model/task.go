package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// Task represents a single tracked item owned by one user.
type Task struct {
	ID          string     `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	UserID      string     `gorm:"index;size:36" bson:"user_id" json:"user_id"`
	Text        string     `bson:"text" json:"text"`
	Category    Category   `gorm:"index;size:16" bson:"type" json:"type"`
	Status      Status     `gorm:"size:16;default:early" bson:"status" json:"status"`
	Completed   bool       `gorm:"default:false" bson:"completed" json:"completed"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Link        string     `bson:"link,omitempty" json:"link,omitempty"`
	Website     string     `bson:"website,omitempty" json:"website,omitempty"`
	Twitter     string     `bson:"twitter,omitempty" json:"twitter,omitempty"`
	Discord     string     `bson:"discord,omitempty" json:"discord,omitempty"`
	Telegram    string     `bson:"telegram,omitempty" json:"telegram,omitempty"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time  `gorm:"index" bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

// SetCompleted flips completion and keeps CompletedAt in step with it.
func (t *Task) SetCompleted(completed bool, at time.Time) {
	t.Completed = completed
	if completed {
		stamp := at
		t.CompletedAt = &stamp
		return
	}
	t.CompletedAt = nil
}

// TaskPatch carries a partial update; nil fields are left untouched.
type TaskPatch struct {
	Text        *string
	Status      *Status
	Completed   *bool
	CompletedAt **time.Time
	Link        *string
	Website     *string
	Twitter     *string
	Discord     *string
	Telegram    *string
	Description *string
}

// Apply copies the set fields of p onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.CompletedAt != nil {
		t.CompletedAt = *p.CompletedAt
	}
	if p.Link != nil {
		t.Link = *p.Link
	}
	if p.Website != nil {
		t.Website = *p.Website
	}
	if p.Twitter != nil {
		t.Twitter = *p.Twitter
	}
	if p.Discord != nil {
		t.Discord = *p.Discord
	}
	if p.Telegram != nil {
		t.Telegram = *p.Telegram
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
}

// Fields returns the patch as a column -> value map for stores that update by column.
func (p TaskPatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.Text != nil {
		fields["text"] = *p.Text
	}
	if p.Status != nil {
		fields["status"] = *p.Status
	}
	if p.Completed != nil {
		fields["completed"] = *p.Completed
	}
	if p.CompletedAt != nil {
		if at := *p.CompletedAt; at != nil {
			fields["completed_at"] = *at
		} else {
			fields["completed_at"] = nil
		}
	}
	if p.Link != nil {
		fields["link"] = *p.Link
	}
	if p.Website != nil {
		fields["website"] = *p.Website
	}
	if p.Twitter != nil {
		fields["twitter"] = *p.Twitter
	}
	if p.Discord != nil {
		fields["discord"] = *p.Discord
	}
	if p.Telegram != nil {
		fields["telegram"] = *p.Telegram
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	return fields
}

// CompletionPatch builds the patch written by toggle.
func CompletionPatch(completed bool, at *time.Time) TaskPatch {
	return TaskPatch{Completed: &completed, CompletedAt: &at}
}
