package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"daily-tracker/internal/engine"
	"daily-tracker/internal/legacy"
	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
	"daily-tracker/internal/service"
)

// fakeAPI records everything the bot sends.
type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	fileURL string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

// said reports whether any message sent so far contains substr.
func (f *fakeAPI) said(substr string) bool {
	for _, msg := range f.messages() {
		if strings.Contains(msg.Text, substr) {
			return true
		}
	}
	return false
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type harness struct {
	bot   *Bot
	api   *fakeAPI
	users *repository.UserRepository
	mgr   *engine.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	mgr := engine.NewManager(engine.Deps{
		Tasks:    repository.NewTaskRepository(db),
		Settings: repository.NewSettingsRepository(db),
		Legacy:   legacy.NoopSource{},
		Location: time.UTC,
	})
	t.Cleanup(mgr.CloseAll)

	api := &fakeAPI{}
	users := repository.NewUserRepository(db)
	b := newBot(api, users, mgr, service.NewSummaryService(), service.NewTransferService(mgr))
	return &harness{bot: b, api: api, users: users, mgr: mgr}
}

func private(telegramID int64) (*tgbotapi.User, *tgbotapi.Chat) {
	return &tgbotapi.User{ID: telegramID, FirstName: "Ann"}, &tgbotapi.Chat{ID: telegramID, Type: "private"}
}

func (h *harness) say(t *testing.T, telegramID int64, text string) {
	t.Helper()
	from, chat := private(telegramID)
	msg := &tgbotapi.Message{From: from, Chat: chat, Text: text}
	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (h *harness) press(t *testing.T, telegramID int64, data string) {
	t.Helper()
	from, chat := private(telegramID)
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", From: from, Data: data, Message: &tgbotapi.Message{Chat: chat},
	}})
}

func (h *harness) session(t *testing.T, telegramID int64) *engine.Session {
	t.Helper()
	user, err := h.users.FindByTelegramID(context.Background(), telegramID)
	if err != nil {
		t.Fatalf("FindByTelegramID: %v", err)
	}
	s, ok := h.mgr.Get(user.ID)
	if !ok {
		t.Fatalf("no open session for %d", telegramID)
	}
	return s
}

func TestStartAndQuickAdd(t *testing.T) {
	h := newHarness(t)

	h.say(t, 42, "/start")
	if !h.api.said("Привет, Ann") {
		t.Fatalf("no greeting in %+v", h.api.messages())
	}

	h.say(t, 42, "/newtask daily Claim faucet")
	if !h.api.said("Задача сохранена") {
		t.Fatal("task not confirmed")
	}
	tasks := h.session(t, 42).Tasks()
	if len(tasks) != 1 || tasks[0].Text != "Claim faucet" || tasks[0].Category != model.CategoryDaily {
		t.Fatalf("tasks = %+v", tasks)
	}

	h.api.reset()
	h.say(t, 42, "/newtask chores mop")
	if !h.api.said("Формат") {
		t.Error("unknown category not rejected")
	}
}

func TestNewTaskConversation(t *testing.T) {
	h := newHarness(t)

	h.say(t, 7, "/newtask")
	h.say(t, 7, "Read whitepaper")
	h.say(t, 7, categoryButton(model.CategoryNote))
	h.say(t, 7, "http://")
	if !h.api.said("Ссылка выглядит некорректно") {
		t.Fatal("bad link accepted")
	}
	h.say(t, 7, "docs.example.com")
	h.say(t, 7, btnSkip)

	tasks := h.session(t, 7).Tasks()
	if len(tasks) != 1 {
		t.Fatalf("tasks = %+v", tasks)
	}
	got := tasks[0]
	if got.Text != "Read whitepaper" || got.Category != model.CategoryNote || got.Link != "docs.example.com" || got.Description != "" {
		t.Errorf("task = %+v", got)
	}
	if h.bot.hasConversation(7) {
		t.Error("conversation not cleared")
	}
}

func TestDailyToggleNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.say(t, 1, "/newtask daily Swap")
	task := h.session(t, 1).Tasks()[0]

	h.api.reset()
	h.press(t, 1, cbDonePrefix+task.ID)
	if !h.api.said("Отметить задачу «Swap» выполненной?") {
		t.Fatalf("no confirmation prompt: %+v", h.api.messages())
	}
	if h.session(t, 1).Tasks()[0].Completed {
		t.Fatal("completed before confirmation")
	}

	h.say(t, 1, btnConfirm)
	if !h.session(t, 1).Tasks()[0].Completed {
		t.Fatal("not completed after confirmation")
	}

	h.api.reset()
	h.say(t, 1, "/done "+task.ID[:6])
	if !h.api.said("нельзя отметить") {
		t.Errorf("second toggle not refused: %+v", h.api.messages())
	}
}

func TestNoteToggleAndAmbiguousPrefix(t *testing.T) {
	h := newHarness(t)
	h.say(t, 3, "/newtask note One")
	task := h.session(t, 3).Tasks()[0]

	h.say(t, 3, "/done "+task.ID)
	if !h.session(t, 3).Tasks()[0].Completed {
		t.Fatal("note not toggled")
	}
	h.say(t, 3, "/done "+task.ID)
	if h.session(t, 3).Tasks()[0].Completed {
		t.Fatal("note not toggled back")
	}

	h.api.reset()
	h.say(t, 3, "/done zzzz-missing")
	if !h.api.said("Задача не найдена") {
		t.Error("missing id not reported")
	}
}

func TestDeleteCancelThenConfirm(t *testing.T) {
	h := newHarness(t)
	h.say(t, 5, "/newtask testnet Run node")
	task := h.session(t, 5).Tasks()[0]

	h.press(t, 5, cbDeletePrefix+task.ID)
	h.say(t, 5, btnCancel)
	if len(h.session(t, 5).Tasks()) != 1 || h.session(t, 5).PendingDelete() != "" {
		t.Fatal("cancel did not keep the task")
	}

	h.say(t, 5, "/delete "+task.ID)
	h.say(t, 5, "что?")
	if !h.api.said("Подтверди или отмени удаление") {
		t.Error("unrelated answer did not re-prompt")
	}
	h.say(t, 5, btnConfirm)
	if n := len(h.session(t, 5).Tasks()); n != 0 {
		t.Fatalf("tasks after delete = %d", n)
	}
}

func TestEditResetTimeAndStats(t *testing.T) {
	h := newHarness(t)
	h.say(t, 9, "/newtask waitlist Join list")
	task := h.session(t, 9).Tasks()[0]

	h.say(t, 9, "/edit "+task.ID[:8]+" Join the list")
	if got := h.session(t, 9).Tasks()[0].Text; got != "Join the list" {
		t.Errorf("edited text = %q", got)
	}

	h.say(t, 9, "/resettime 07:30")
	if got := h.session(t, 9).ResetTime().String(); got != "07:30" {
		t.Errorf("reset time = %s", got)
	}
	h.api.reset()
	h.say(t, 9, "/resettime 7pm")
	if !h.api.said("ЧЧ:ММ") {
		t.Error("bad reset time not rejected")
	}

	h.say(t, 9, "/reset")
	h.say(t, 9, btnConfirm)
	if !h.api.said("Ежедневные задачи сброшены") {
		t.Error("reset not confirmed")
	}

	h.api.reset()
	h.say(t, 9, "/stats")
	if !h.api.said("Вейтлисты: 0/1 (0%)") {
		t.Errorf("stats: %+v", h.api.messages())
	}
	h.say(t, 9, "/countdown")
	if !h.api.said("(в 07:30)") {
		t.Error("countdown missing reset time")
	}
}

func TestExportThenImportDocument(t *testing.T) {
	h := newHarness(t)
	h.say(t, 11, "/newtask daily Bridge")
	h.say(t, 11, "/newtask note Idea")

	h.api.reset()
	h.say(t, 11, "/export")
	var exported []byte
	for _, c := range h.api.sent {
		if doc, ok := c.(tgbotapi.DocumentConfig); ok {
			exported = doc.File.(tgbotapi.FileBytes).Bytes
		}
	}
	if len(exported) == 0 {
		t.Fatal("no document sent")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(exported)
	}))
	defer srv.Close()
	h.api.fileURL = srv.URL

	from, chat := private(12)
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: from, Chat: chat, Document: &tgbotapi.Document{FileID: "f1", FileName: "tasks.json", FileSize: len(exported)},
	}})
	if !h.api.said("Импортировано задач: 2") {
		t.Fatalf("import not reported: %+v", h.api.messages())
	}
	if n := len(h.session(t, 12).Tasks()); n != 2 {
		t.Errorf("imported tasks = %d", n)
	}
	if n := len(h.session(t, 11).Tasks()); n != 2 {
		t.Errorf("exporting user lost tasks: %d", n)
	}
}

func TestLogoutReportsAndGroups(t *testing.T) {
	h := newHarness(t)
	h.say(t, 21, "/newtask daily Claim")
	h.say(t, 22, "/start")

	h.api.reset()
	if err := h.bot.SendDailyReports(context.Background()); err != nil {
		t.Fatalf("SendDailyReports: %v", err)
	}
	reports := 0
	for _, msg := range h.api.messages() {
		if strings.Contains(msg.Text, "Ежедневный отчёт") {
			reports++
		}
	}
	if reports != 2 {
		t.Errorf("reports = %d, want 2", reports)
	}

	user, _ := h.users.FindByTelegramID(context.Background(), 21)
	h.say(t, 21, "/logout")
	if _, ok := h.mgr.Get(user.ID); ok {
		t.Error("session survived logout")
	}

	h.api.reset()
	from, _ := private(21)
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: from, Chat: &tgbotapi.Chat{ID: -100, Type: "group"}, Text: "hi",
	}})
	if len(h.api.sent) != 0 {
		t.Error("bot answered in a group chat")
	}
}
