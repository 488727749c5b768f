// Package transfer reads and writes the task export document shared with the browser app.
package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
)

// Version is written into every exported document.
const Version = "1.0"

// Record is a task in the browser app's shape: camelCase keys, millisecond timestamps.
type Record struct {
	ID          string `json:"id,omitempty"`
	Text        string `json:"text"`
	Completed   bool   `json:"completed"`
	Type        string `json:"type"`
	Status      string `json:"status,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
	Link        string `json:"link,omitempty"`
	Website     string `json:"website,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Discord     string `json:"discord,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	Description string `json:"description,omitempty"`
}

// Document is the wrapped export shape.
type Document struct {
	Tasks           []Record              `json:"tasks"`
	CustomResetTime *resetclock.ResetTime `json:"customResetTime,omitempty"`
	ExportDate      string                `json:"exportDate,omitempty"`
	Version         string                `json:"version,omitempty"`
}

// NewDocument builds an export document for tasks and the current reset time.
func NewDocument(tasks []model.Task, rt resetclock.ResetTime, now time.Time) Document {
	records := make([]Record, 0, len(tasks))
	for _, task := range tasks {
		records = append(records, FromTask(task))
	}
	return Document{
		Tasks:           records,
		CustomResetTime: &rt,
		ExportDate:      now.UTC().Format(time.RFC3339),
		Version:         Version,
	}
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Decode accepts either a bare array of records or a wrapped document.
func Decode(r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read import: %w", err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Document{}, fmt.Errorf("import is empty")
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return Document{}, fmt.Errorf("decode task array: %w", err)
		}
		return Document{Tasks: records}, nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Document{}, fmt.Errorf("decode import document: %w", err)
	}
	if doc.Tasks == nil {
		return Document{}, fmt.Errorf("import document has no tasks array")
	}
	if doc.CustomResetTime != nil {
		clamped := doc.CustomResetTime.Clamp()
		doc.CustomResetTime = &clamped
	}
	return doc, nil
}

// FromTask converts a stored task into its wire record.
func FromTask(task model.Task) Record {
	rec := Record{
		ID:          task.ID,
		Text:        task.Text,
		Completed:   task.Completed,
		Type:        string(task.Category),
		Status:      string(task.Status),
		Link:        task.Link,
		Website:     task.Website,
		Twitter:     task.Twitter,
		Discord:     task.Discord,
		Telegram:    task.Telegram,
		Description: task.Description,
	}
	if !task.CreatedAt.IsZero() {
		rec.CreatedAt = task.CreatedAt.UnixMilli()
	}
	if task.Completed && task.CompletedAt != nil {
		ms := task.CompletedAt.UnixMilli()
		rec.CompletedAt = &ms
	}
	return rec
}

// ToTask converts a wire record into a task owned by userID. Unknown categories fall back to
// daily and a missing status to early. A completed record without any timestamp is stamped now.
func (r Record) ToTask(userID string, now time.Time) model.Task {
	category, ok := model.ParseCategory(r.Type)
	if !ok {
		category = model.CategoryDaily
	}
	status, ok := model.ParseStatus(r.Status)
	if !ok {
		status = model.StatusEarly
	}
	task := model.Task{
		ID:          r.ID,
		UserID:      userID,
		Text:        r.Text,
		Category:    category,
		Status:      status,
		Completed:   r.Completed,
		Link:        r.Link,
		Website:     r.Website,
		Twitter:     r.Twitter,
		Discord:     r.Discord,
		Telegram:    r.Telegram,
		Description: r.Description,
	}
	if r.CreatedAt > 0 {
		task.CreatedAt = time.UnixMilli(r.CreatedAt)
	}
	if r.Completed {
		stamp := now
		switch {
		case r.CompletedAt != nil:
			stamp = time.UnixMilli(*r.CompletedAt)
		case !task.CreatedAt.IsZero():
			stamp = task.CreatedAt
		}
		task.CompletedAt = &stamp
	}
	return task
}

// ToTasks converts every record in d for userID.
func (d Document) ToTasks(userID string, now time.Time) []model.Task {
	tasks := make([]model.Task, 0, len(d.Tasks))
	for _, rec := range d.Tasks {
		tasks = append(tasks, rec.ToTask(userID, now))
	}
	return tasks
}
