package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"daily-tracker/internal/engine"
	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
	"daily-tracker/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageText
	stageCategory
	stageLink
	stageDescription
)

const (
	cbDonePrefix   = "done:"
	cbDeletePrefix = "delete:"
)

const maxImportBytes = 5 << 20

type conversationState struct {
	stage conversationStage
	input engine.TaskInput
}

type confirmationAction int

const (
	actionToggle confirmationAction = iota
	actionDelete
	actionReset
)

// UserStore maps Telegram accounts onto tracker users.
type UserStore interface {
	UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error)
	ListAll(ctx context.Context) ([]model.User, error)
}

// botAPI is the part of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot aggregates Telegram API with the task engine.
type Bot struct {
	api         botAPI
	users       UserStore
	manager     *engine.Manager
	summarySvc  *service.SummaryService
	transferSvc *service.TransferService
	httpClient  *http.Client
	now         func() time.Time

	conversations map[int64]*conversationState
	confirmations map[int64]confirmationAction
	mu            sync.Mutex
}

func New(token string, users UserStore, manager *engine.Manager, summarySvc *service.SummaryService, transferSvc *service.TransferService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return newBot(api, users, manager, summarySvc, transferSvc), nil
}

func newBot(api botAPI, users UserStore, manager *engine.Manager, summarySvc *service.SummaryService, transferSvc *service.TransferService) *Bot {
	return &Bot{
		api:           api,
		users:         users,
		manager:       manager,
		summarySvc:    summarySvc,
		transferSvc:   transferSvc,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationAction),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.Printf("[warn] handle callback: %v", err)
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("[warn] handle message: %v", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.Document != nil {
		return b.handleImport(ctx, msg)
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.cancelConfirmation(ctx, msg.From)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if action, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, action)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /newtask, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.handleNewTask(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "edit":
		return b.handleEdit(ctx, msg)
	case "resettime":
		return b.handleResetTime(ctx, msg)
	case "reset":
		return b.handleReset(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "countdown":
		return b.handleCountdown(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "export":
		return b.handleExport(ctx, msg)
	case "logout":
		return b.handleLogout(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.cancelConfirmation(ctx, msg.From)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я трекер ежедневных задач: отмечай дейлики, они сбросятся сами в %s.</b>\n\n"+
			"До сброса: <b>%s</b>\n\nВсе команды — в /help.",
		escape(name), session.ResetTime(), resetclock.FormatCountdown(session.TimeUntilReset()),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /newtask — добавить задачу пошагово\n" +
		"• /newtask &lt;тип&gt; &lt;текст&gt; — добавить сразу (daily, note, waitlist, testnet)\n" +
		"• /tasks [тип] — показать задачи и отметить по кнопке\n" +
		"• /done &lt;id&gt; — отметить задачу (достаточно начала id)\n" +
		"• /delete &lt;id&gt; — удалить задачу\n" +
		"• /edit &lt;id&gt; &lt;текст&gt; — переименовать задачу\n" +
		"• /resettime [ЧЧ:ММ] — время ежедневного сброса\n" +
		"• /reset — сбросить ежедневные задачи сейчас\n" +
		"• /stats — статистика по типам\n" +
		"• /countdown — сколько осталось до сброса\n" +
		"• /report — отчёт прямо сейчас\n" +
		"• /export — выгрузить задачи в JSON\n" +
		"• отправь JSON-файл — импортировать задачи\n" +
		"• /logout — завершить сессию\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, b.summarySvc.DailySummary(session, b.now()))
}

func (b *Bot) handleNewTask(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args != "" {
		parts := strings.SplitN(args, " ", 2)
		category, ok := model.ParseCategory(parts[0])
		if !ok || len(parts) < 2 {
			return b.sendText(msg.Chat.ID, "Формат: /newtask &lt;daily|note|waitlist|testnet&gt; &lt;текст&gt;")
		}
		return b.finishTaskCreation(ctx, msg.From, engine.TaskInput{Text: parts[1], Category: category}, msg.Chat.ID)
	}

	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageText})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> что нужно сделать?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageText:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Текст задачи не может быть пустым.", cancelKeyboard())
		}
		state.input.Text = text
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Выбери тип задачи.", categoryKeyboard())
	case stageCategory:
		category, ok := parseCategoryInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери тип кнопкой ниже.", categoryKeyboard())
		}
		state.input.Category = category
		state.stage = stageLink
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔗 Пришли ссылку (или нажми «Пропустить»).", skipKeyboard())
	case stageLink:
		if !isSkipInput(text) {
			if !engine.ValidURL(text) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Ссылка выглядит некорректно. Пришли другую или «Пропустить».", skipKeyboard())
			}
			state.input.Link = text
		}
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		input := state.input
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg.From, input, msg.Chat.ID)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input engine.TaskInput, chatID int64) error {
	session, err := b.session(ctx, from)
	if err != nil {
		return err
	}

	task, err := session.Add(ctx, input)
	if err != nil {
		return b.sendError(chatID, err)
	}

	log.Printf("[info] task created id=%s user=%s type=%s", task.ID, session.UserID(), task.Category)

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", shortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Текст:</b> %s\n", escape(task.Text)))
	summary.WriteString(fmt.Sprintf("• <b>Тип:</b> %s\n", service.CategoryLabel(task.Category)))
	if task.Link != "" {
		summary.WriteString(fmt.Sprintf("• <b>Ссылка:</b> %s\n", escape(task.Link)))
	}
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}

	if err := b.sendText(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(chatID, session, engine.Filter{Category: task.Category})
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}

	var filter engine.Filter
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		category, ok := model.ParseCategory(args)
		if !ok {
			return b.sendText(msg.Chat.ID, "Неизвестный тип. Доступны: daily, note, waitlist, testnet.")
		}
		filter.Category = category
	}

	log.Printf("[info] list tasks for user=%s", session.UserID())
	return b.sendTaskList(msg.Chat.ID, session, filter)
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /done 3f2a")
	}
	return b.requestToggle(ctx, msg.Chat.ID, msg.From, args)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 3f2a")
	}
	return b.requestDelete(ctx, msg.Chat.ID, msg.From, args)
}

func (b *Bot) handleEdit(ctx context.Context, msg *tgbotapi.Message) error {
	parts := strings.SplitN(strings.TrimSpace(msg.CommandArguments()), " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return b.sendText(msg.Chat.ID, "Формат: /edit &lt;id&gt; &lt;новый текст&gt;")
	}

	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := session.Find(parts[0])
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}

	updated, err := session.Edit(ctx, task.ID, engine.EditInput{
		Text:        parts[1],
		Status:      task.Status,
		Link:        task.Link,
		Website:     task.Website,
		Twitter:     task.Twitter,
		Discord:     task.Discord,
		Telegram:    task.Telegram,
		Description: task.Description,
	})
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✏️ Задача обновлена: %s", escape(updated.Text)))
}

func (b *Bot) handleResetTime(ctx context.Context, msg *tgbotapi.Message) error {
	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Сброс ежедневных задач в <b>%s</b>. Изменить: /resettime 06:30", session.ResetTime()))
	}
	rt, err := resetclock.ParseResetTime(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Время должно быть в формате ЧЧ:ММ, например /resettime 06:30")
	}
	if err := session.SetResetTime(ctx, rt); err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("⏰ Теперь сброс в <b>%s</b>. До сброса: %s", rt, resetclock.FormatCountdown(session.TimeUntilReset())))
}

func (b *Bot) handleReset(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.session(ctx, msg.From); err != nil {
		return err
	}
	b.setConfirmation(msg.From.ID, actionReset)
	return b.sendWithReplyMarkup(msg.Chat.ID, "Сбросить все ежедневные задачи прямо сейчас?", confirmKeyboard())
}

func (b *Bot) confirmReset(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	if err := session.ResetNow(ctx); err != nil {
		return b.sendError(chatID, err)
	}
	return b.sendTextWithRemove(chatID, "🔄 Ежедневные задачи сброшены.")
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "📊 <b>Статистика</b>\n"+strings.TrimSpace(service.FormatStats(session.Stats())))
}

func (b *Bot) handleCountdown(ctx context.Context, msg *tgbotapi.Message) error {
	session, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("⏱ До сброса: <b>%s</b> (в %s)", resetclock.FormatCountdown(session.TimeUntilReset()), session.ResetTime()))
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	var buf strings.Builder
	n, err := b.transferSvc.Export(ctx, user.ID, &buf)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("tasks_export_%s.json", b.now().Format("2006-01-02")),
		Bytes: []byte(buf.String()),
	})
	doc.Caption = fmt.Sprintf("📦 Выгружено задач: %d", n)
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) handleImport(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Document.FileSize > maxImportBytes {
		return b.sendText(msg.Chat.ID, "Файл слишком большой для импорта.")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	url, err := b.api.GetFileDirectURL(msg.Document.FileID)
	if err != nil {
		return fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Не удалось скачать файл, попробуй ещё раз.")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return b.sendText(msg.Chat.ID, "Не удалось скачать файл, попробуй ещё раз.")
	}

	tasks, err := b.transferSvc.Import(ctx, user.ID, io.LimitReader(resp.Body, maxImportBytes))
	if err != nil && tasks == nil {
		log.Printf("[warn] import for user=%s: %v", user.ID, err)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("❌ Импорт не удался: %s", escape(describeError(err))))
	}

	text := fmt.Sprintf("📥 Импортировано задач: %d", len(tasks))
	if err != nil {
		text += "\nВремя сброса из файла сохранить не удалось."
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLogout(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	b.clearConversation(msg.From.ID)
	b.clearConfirmation(msg.From.ID)
	if b.manager.Close(user.ID) {
		log.Printf("[info] session closed user=%s", user.ID)
	}
	return b.sendText(msg.Chat.ID, "👋 Сессия завершена. Набери /start, чтобы продолжить.")
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, action confirmationAction) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		switch action {
		case actionDelete:
			return b.confirmDelete(ctx, msg.Chat.ID, msg.From)
		case actionReset:
			return b.confirmReset(ctx, msg.Chat.ID, msg.From)
		default:
			return b.confirmToggle(ctx, msg.Chat.ID, msg.From)
		}
	case isCancelInput(text):
		b.cancelConfirmation(ctx, msg.From)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Подтверди или отмени выполнение задачи."
		switch action {
		case actionDelete:
			prompt = "Подтверди или отмени удаление задачи."
		case actionReset:
			prompt = "Подтверди или отмени сброс."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		session, err := b.manager.Open(ctx, user.ID)
		if err != nil {
			log.Printf("[warn] open session for user %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.sendText(user.TelegramID, b.summarySvc.DailySummary(session, now)); err != nil {
			log.Printf("[warn] send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

// session returns the engine session of the Telegram user, opening it on first use.
func (b *Bot) session(ctx context.Context, from *tgbotapi.User) (*engine.Session, error) {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil, err
	}
	return b.manager.Open(ctx, user.ID)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Главное меню")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

// sendError turns an engine error into a user-facing message.
func (b *Bot) sendError(chatID int64, err error) error {
	if errors.Is(err, engine.ErrRemote) {
		log.Printf("[warn] chat %d: %v", chatID, err)
	}
	return b.sendText(chatID, describeError(err))
}

func describeError(err error) string {
	switch {
	case errors.Is(err, engine.ErrTaskNotFound):
		return "Задача не найдена."
	case errors.Is(err, engine.ErrAmbiguousID):
		return "Под этот ID подходит несколько задач, укажи больше символов."
	case errors.Is(err, engine.ErrToggleNotAllowed):
		return "Эту задачу нельзя отметить: выполненные дейлики снимаются только сбросом, вейтлисты и тестнеты не отмечаются."
	case errors.Is(err, engine.ErrNoPendingConfirmation):
		return "Нечего подтверждать."
	case errors.Is(err, engine.ErrValidation):
		return "Проверь данные: " + strings.TrimPrefix(err.Error(), engine.ErrValidation.Error()+": ")
	case errors.Is(err, engine.ErrRemote):
		return "Не удалось сохранить изменения, попробуй ещё раз."
	case errors.Is(err, engine.ErrSessionClosed):
		return "Сессия завершена. Набери /start."
	default:
		return "Ошибка: " + err.Error()
	}
}

func (b *Bot) getConfirmation(userID int64) (confirmationAction, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	action, ok := b.confirmations[userID]
	return action, ok
}

func (b *Bot) setConfirmation(userID int64, action confirmationAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = action
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

// cancelConfirmation drops the pending action both here and in the session.
func (b *Bot) cancelConfirmation(ctx context.Context, from *tgbotapi.User) {
	action, ok := b.getConfirmation(from.ID)
	if !ok {
		return
	}
	b.clearConfirmation(from.ID)
	session, err := b.session(ctx, from)
	if err != nil {
		return
	}
	switch action {
	case actionDelete:
		session.CancelDelete()
	case actionToggle:
		session.CancelToggle()
	}
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) sendTaskList(chatID int64, session *engine.Session, filter engine.Filter) error {
	tasks := session.List(filter)
	if len(tasks) == 0 {
		return b.sendText(chatID, "Задач пока нет. Добавь новую через /newtask.")
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Задачи</b>\n")
	builder.WriteString(fmt.Sprintf("⏱ До сброса: %s\n\n", resetclock.FormatCountdown(session.TimeUntilReset())))

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, category := range model.Categories {
		var section []model.Task
		for _, task := range tasks {
			if task.Category == category {
				section = append(section, task)
			}
		}
		if len(section) == 0 {
			continue
		}

		builder.WriteString(fmt.Sprintf("%s <b>%s</b>\n", service.CategoryIcon(category), service.CategoryLabel(category)))
		for _, task := range section {
			builder.WriteString(service.FormatTask(task))

			var row []tgbotapi.InlineKeyboardButton
			if task.Category.CanToggle(task.Completed) {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s", shortTitle(task.Text, 24)), cbDonePrefix+task.ID))
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", cbDeletePrefix+task.ID))
			buttons = append(buttons, row)
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[warn] callback ack: %v", err)
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbDonePrefix):
		log.Printf("[info] callback done request user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbDonePrefix))
		return b.requestToggle(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbDonePrefix))
	case strings.HasPrefix(data, cbDeletePrefix):
		log.Printf("[info] callback delete request user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbDeletePrefix))
		return b.requestDelete(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbDeletePrefix))
	default:
		return nil
	}
}

func (b *Bot) requestToggle(ctx context.Context, chatID int64, from *tgbotapi.User, idOrPrefix string) error {
	session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	task, err := session.Find(idOrPrefix)
	if err != nil {
		return b.sendError(chatID, err)
	}

	outcome, err := session.RequestToggle(ctx, task.ID)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if outcome.NeedsConfirmation {
		b.setConfirmation(from.ID, actionToggle)
		text := fmt.Sprintf("Отметить задачу «%s» выполненной? Снять отметку можно будет только после сброса.", escape(outcome.Task.Text))
		return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
	}

	if outcome.Task.Completed {
		return b.sendText(chatID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(outcome.Task.Text)))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ Отметка с задачи «%s» снята.", escape(outcome.Task.Text)))
}

func (b *Bot) confirmToggle(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	task, err := session.ConfirmToggle(ctx)
	if err != nil {
		return b.sendError(chatID, err)
	}

	log.Printf("[info] task completed id=%s user=%s", task.ID, session.UserID())
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(task.Text))); err != nil {
		return err
	}
	return b.sendTaskList(chatID, session, engine.Filter{Category: task.Category})
}

func (b *Bot) requestDelete(ctx context.Context, chatID int64, from *tgbotapi.User, idOrPrefix string) error {
	session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	task, err := session.Find(idOrPrefix)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if _, err := session.RequestDelete(task.ID); err != nil {
		return b.sendError(chatID, err)
	}

	b.setConfirmation(from.ID, actionDelete)
	text := fmt.Sprintf("Удалить задачу «%s»?", escape(task.Text))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) confirmDelete(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	session, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	task, err := session.ConfirmDelete(ctx)
	if err != nil {
		return b.sendError(chatID, err)
	}

	log.Printf("[info] task deleted id=%s user=%s", task.ID, session.UserID())
	return b.sendTextWithRemove(chatID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(task.Text)))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.handleNewTask(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelStats):
		return true, b.handleStats(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func shortTitle(title string, maxLen int) string {
	clean := strings.Join(strings.Fields(title), " ")
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func escape(s string) string {
	return html.EscapeString(s)
}
