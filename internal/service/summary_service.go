package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"daily-tracker/internal/engine"
	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
)

// TaskView is the read side of a session that summaries are built from.
type TaskView interface {
	Tasks() []model.Task
	ResetTime() resetclock.ResetTime
	TimeUntilReset() time.Duration
}

// SummaryService builds human-readable summaries for periodic notifications.
type SummaryService struct{}

func NewSummaryService() *SummaryService {
	return &SummaryService{}
}

// DailySummary renders the countdown, the daily tasks still open and per-category stats as Telegram HTML.
func (s *SummaryService) DailySummary(view TaskView, now time.Time) string {
	tasks := view.Tasks()

	var pending []model.Task
	for _, task := range tasks {
		if task.Category == model.CategoryDaily && !task.Completed {
			pending = append(pending, task)
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Ежедневный отчёт</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("02.01.2006")))
	builder.WriteString(fmt.Sprintf("⏱ До сброса: <b>%s</b> (в %s)\n\n",
		resetclock.FormatCountdown(view.TimeUntilReset()), view.ResetTime()))

	builder.WriteString("🔁 <b>Невыполненные ежедневные</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— всё выполнено\n")
	} else {
		for _, task := range pending {
			builder.WriteString(FormatTask(task))
		}
	}

	builder.WriteString("\n📊 <b>Статистика</b>\n")
	builder.WriteString(FormatStats(engine.ComputeStats(tasks)))

	return strings.TrimSpace(builder.String())
}

// FormatTask renders one task as a Telegram HTML line with its links.
func FormatTask(task model.Task) string {
	var sb strings.Builder

	icon := "⬜️"
	if task.Completed {
		icon = "✅"
	}
	sb.WriteString(fmt.Sprintf("%s %s <code>%s</code>", icon, html.EscapeString(task.Text), shortID(task.ID)))
	if task.Category != model.CategoryDaily && task.Status != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", StatusLabel(task.Status)))
	}

	for _, link := range []struct{ label, url string }{
		{"ссылка", task.Link},
		{"сайт", task.Website},
		{"twitter", task.Twitter},
		{"discord", task.Discord},
		{"telegram", task.Telegram},
	} {
		if link.url == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n   🔗 <a href=\"%s\">%s</a>", html.EscapeString(absoluteURL(link.url)), link.label))
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(task.Description)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// FormatStats renders one line per category.
func FormatStats(stats []engine.CategoryStats) string {
	var sb strings.Builder
	for _, st := range stats {
		sb.WriteString(fmt.Sprintf("%s %s: %d/%d (%d%%)\n", CategoryIcon(st.Category), CategoryLabel(st.Category), st.Completed, st.Total, st.CompletionRate))
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func absoluteURL(raw string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return "https://" + raw
}
