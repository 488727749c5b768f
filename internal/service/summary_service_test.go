package service

import (
	"strings"
	"testing"
	"time"

	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
)

type staticView struct {
	tasks []model.Task
	rt    resetclock.ResetTime
	until time.Duration
}

func (v staticView) Tasks() []model.Task { return v.tasks }
func (v staticView) ResetTime() resetclock.ResetTime { return v.rt }
func (v staticView) TimeUntilReset() time.Duration { return v.until }

func TestDailySummary(t *testing.T) {
	view := staticView{
		tasks: []model.Task{
			{ID: "aaaaaaaa-1111", Text: "Claim <faucet>", Category: model.CategoryDaily, Link: "faucet.example.com"},
			{ID: "bbbbbbbb-2222", Text: "Swap", Category: model.CategoryDaily, Completed: true},
			{ID: "cccccccc-3333", Text: "Read", Category: model.CategoryNote, Status: model.StatusOngoing},
		},
		rt:    resetclock.ResetTime{Hour: 6, Minute: 0},
		until: 90*time.Minute + 5*time.Second,
	}
	now := time.Date(2026, 10, 15, 4, 30, 0, 0, time.UTC)

	got := NewSummaryService().DailySummary(view, now)

	for _, want := range []string{
		"15.10.2026",
		"<b>01:30:05</b> (в 06:00)",
		"Claim &lt;faucet&gt; <code>aaaaaaaa</code>",
		`href="https://faucet.example.com"`,
		"Ежедневные: 1/2 (50%)",
		"Заметки: 0/1 (0%)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Swap") || strings.Contains(got, "Read") {
		t.Errorf("summary lists tasks that are not open daily tasks:\n%s", got)
	}
}

func TestDailySummaryAllDone(t *testing.T) {
	got := NewSummaryService().DailySummary(staticView{}, time.Now())
	if !strings.Contains(got, "всё выполнено") {
		t.Errorf("empty summary:\n%s", got)
	}
}

func TestLabels(t *testing.T) {
	if CategoryLabel(model.CategoryTestnet) != "Тестнеты" || CategoryLabel("other") != "other" {
		t.Error("CategoryLabel")
	}
	if StatusLabel(model.StatusEnded) != "завершён" {
		t.Error("StatusLabel")
	}
	if CategoryIcon("other") != "•" {
		t.Error("CategoryIcon fallback")
	}
}
