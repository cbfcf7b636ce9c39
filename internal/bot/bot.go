package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"slate/internal/config"
	"slate/internal/model"
	"slate/internal/repository"
	"slate/internal/service"
)

const (
	cbDonePrefix   = "done:"
	cbSkipPrefix   = "skip:"
	cbUndoPrefix   = "undo:"
	cbReviewPrefix = "review:"
	cbPlanPrefix   = "plan:"
)

// API is the part of the Telegram client the bot talks to.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Services bundles the planner operations exposed through chat.
type Services struct {
	Users     *repository.UserRepository
	Tasks     *service.TaskService
	Planning  *service.PlanningService
	Review    *service.ReviewService
	Query     *service.QueryService
	Generator *service.Generator
	Routine   *service.RoutineService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           API
	svc           Services
	config        *config.Config
	log           *zap.SugaredLogger
	now           func() time.Time
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, svc Services, cfg *config.Config, log *zap.SugaredLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Infow("bot authorized", "account", api.Self.UserName)
	return newBot(api, svc, cfg, log), nil
}

func newBot(api API, svc Services, cfg *config.Config, log *zap.SugaredLogger) *Bot {
	return &Bot{
		api:           api,
		svc:           svc,
		config:        cfg,
		log:           log.Named("bot"),
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Errorw("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Errorw("handle message", "error", err)
			}
		}
	}

	return nil
}

// Notify sends text to the user's Telegram chat.
func (b *Bot) Notify(ctx context.Context, user *model.User, text string) error {
	if user.TelegramID == nil {
		return fmt.Errorf("user %s has no telegram chat", user.ID)
	}
	return b.sendText(*user.TelegramID, text)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Debugw("command", "from", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I didn't get that. Try /today, /newtask or /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "skip":
		return b.handleSkip(ctx, msg)
	case "review":
		return b.handleReview(ctx, msg)
	case "backlog":
		return b.handleBacklog(ctx, msg)
	case "duesoon":
		return b.handleDueSoon(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "plan":
		return b.handlePlan(ctx, msg)
	case "custom":
		return b.handleCustom(ctx, msg)
	case "timezone":
		return b.handleTimezone(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	b.registerRoutine(user)

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I plan your day: recurring habits, a backlog and an evening review.</b>\n\n"+
			"Your timezone is <code>%s</code>. Change it with /timezone.\n\n%s",
		escape(name), escape(user.Timezone), helpText,
	)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /today — today's plan\n" +
	"• /done &lt;n&gt; — complete item n of /today\n" +
	"• /skip &lt;n&gt; — skip item n of /today\n" +
	"• /custom [HH:MM] &lt;title&gt; — one-off item for today\n" +
	"• /backlog — tasks waiting to be planned\n" +
	"• /plan &lt;n&gt; [HH:MM] — pull backlog task n into today\n" +
	"• /duesoon — backlog tasks due soon\n" +
	"• /newtask — add a backlog task or a recurring habit\n" +
	"• /review — decide what happens to unfinished items\n" +
	"• /timezone &lt;Area/City&gt; — set your timezone\n" +
	"• /cancel — stop the current dialog"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ "+helpText)
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendToday(ctx, msg.Chat.ID, user)
}

func (b *Bot) sendToday(ctx context.Context, chatID int64, user *model.User) error {
	today, err := b.today(user)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if _, err := b.svc.Generator.CatchUp(ctx, user, today); err != nil {
		return b.sendError(chatID, err)
	}

	pending, err := b.pendingToday(ctx, user, today)
	if err != nil {
		return b.sendError(chatID, err)
	}
	completed, err := b.svc.Query.CompletedToday(ctx, user, today)
	if err != nil {
		return b.sendError(chatID, err)
	}
	progress, err := b.svc.Query.Progress(ctx, user, today)
	if err != nil {
		return b.sendError(chatID, err)
	}

	text := renderToday(today, progress, pending, b.svc.Query.TopN(), completed)
	buttons := todayButtons(pending, completed)
	if len(buttons) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

// pendingToday lists pending items in the order /today numbers them.
func (b *Bot) pendingToday(ctx context.Context, user *model.User, today model.Date) ([]model.DailyTask, error) {
	top, err := b.svc.Query.TodayTop(ctx, user, today, 0)
	if err != nil {
		return nil, err
	}
	rest, err := b.svc.Query.TodayRest(ctx, user, today, 0)
	if err != nil {
		return nil, err
	}
	return append(top, rest...), nil
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	return b.handleByIndex(ctx, msg, "/done 2", func(user *model.User, dt model.DailyTask) (string, error) {
		if _, err := b.svc.Planning.Complete(ctx, user, dt.ID, b.now()); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Done: %s", escape(normalizeTitle(dt.Title))), nil
	})
}

func (b *Bot) handleSkip(ctx context.Context, msg *tgbotapi.Message) error {
	return b.handleByIndex(ctx, msg, "/skip 2", func(user *model.User, dt model.DailyTask) (string, error) {
		if _, err := b.svc.Planning.Skip(ctx, user, dt.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("⏭ Skipped: %s", escape(normalizeTitle(dt.Title))), nil
	})
}

func (b *Bot) handleByIndex(ctx context.Context, msg *tgbotapi.Message, example string, apply func(user *model.User, dt model.DailyTask) (string, error)) error {
	n, err := parseIndex(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Give the item number from /today, e.g. %s", example))
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	today, err := b.today(user)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	pending, err := b.pendingToday(ctx, user, today)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	if n > len(pending) {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("There is no item %d. /today lists %d open items.", n, len(pending)))
	}

	text, err := apply(user, pending[n-1])
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReview(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	today, err := b.today(user)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	unfinished, err := b.svc.Query.Unfinished(ctx, user, today)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	if len(unfinished) == 0 {
		return b.sendText(msg.Chat.ID, "🌙 Nothing left to review today.")
	}

	if err := b.sendText(msg.Chat.ID, fmt.Sprintf("🌙 <b>Review</b> · %d open. Pick what happens to each:", len(unfinished))); err != nil {
		return err
	}
	for _, dt := range unfinished {
		markup := tgbotapi.NewInlineKeyboardMarkup(reviewButtons(dt))
		if err := b.sendWithReplyMarkup(msg.Chat.ID, strings.TrimSpace(service.FormatDailyTask(dt)), markup); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleBacklog(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendBacklog(ctx, msg.Chat.ID, user)
}

func (b *Bot) sendBacklog(ctx context.Context, chatID int64, user *model.User) error {
	today, err := b.today(user)
	if err != nil {
		return b.sendError(chatID, err)
	}
	tasks, err := b.svc.Query.Backlog(ctx, user)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "📥 The backlog is empty. Add something with /newtask.")
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, task := range tasks {
		label := fmt.Sprintf("📅 #%d · %s", i+1, shortTitle(task.Title, 24))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbPlanPrefix+task.ID),
		))
	}
	return b.sendWithReplyMarkup(chatID, renderBacklog(tasks, today), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) handleDueSoon(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	today, err := b.today(user)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	tasks, err := b.svc.Query.DueSoon(ctx, user, today)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, renderDueSoon(tasks, today))
}

func (b *Bot) handlePlan(ctx context.Context, msg *tgbotapi.Message) error {
	n, clock, err := parsePlanArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: /plan &lt;n&gt; [HH:MM], where n is the number from /backlog.")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tasks, err := b.svc.Query.Backlog(ctx, user)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	if n > len(tasks) {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("There is no backlog task %d.", n))
	}
	return b.planTask(ctx, msg.Chat.ID, user, tasks[n-1].ID, clock)
}

func (b *Bot) planTask(ctx context.Context, chatID int64, user *model.User, taskID, clock string) error {
	today, err := b.today(user)
	if err != nil {
		return b.sendError(chatID, err)
	}
	dt, err := b.svc.Planning.PullFromBacklog(ctx, user, service.PullInput{TaskID: taskID, Date: today.String(), Time: clock})
	if err != nil {
		return b.sendError(chatID, err)
	}
	b.log.Infow("task planned", "user_id", user.ID, "task_id", taskID, "date", today)

	text := fmt.Sprintf("📅 Planned for today: %s", escape(normalizeTitle(dt.Title)))
	if dt.Time != nil {
		text += fmt.Sprintf(" at %s", *dt.Time)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleCustom(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.setConversation(msg.From.ID, &conversationState{stage: stageCustomTitle})
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ What do you want to do today? You can start with a time, e.g. <code>18:00 Call mom</code>.", cancelKeyboard())
	}
	return b.addCustom(ctx, msg.Chat.ID, user, args)
}

func (b *Bot) addCustom(ctx context.Context, chatID int64, user *model.User, text string) error {
	clock, title := parseCustomArgs(text)
	today, err := b.today(user)
	if err != nil {
		return b.sendError(chatID, err)
	}
	dt, err := b.svc.Planning.AddCustom(ctx, user, service.CustomInput{Date: today.String(), Title: title, Time: clock})
	if err != nil {
		return b.sendError(chatID, err)
	}

	text = fmt.Sprintf("➕ Added for today: %s", escape(normalizeTitle(dt.Title)))
	if dt.Time != nil {
		text += fmt.Sprintf(" at %s", *dt.Time)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleTimezone(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tz := strings.TrimSpace(msg.CommandArguments())
	if tz == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Your timezone is <code>%s</code>. Set it with e.g. /timezone Europe/Berlin", escape(user.Timezone)))
	}

	previous := user.Timezone
	user.Timezone = tz
	if err := user.Validate(); err != nil {
		user.Timezone = previous
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Unknown timezone <code>%s</code>. Use an IANA name like America/New_York.", escape(tz)))
	}
	if err := b.svc.Users.UpdateSettings(ctx, user); err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	b.registerRoutine(user)
	b.log.Infow("timezone changed", "user_id", user.ID, "timezone", tz)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🌍 Timezone set to <code>%s</code>.", escape(tz)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warnw("callback ack", "error", err)
	}

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	b.log.Debugw("callback", "from", cb.From.ID, "data", data)

	switch {
	case strings.HasPrefix(data, cbDonePrefix):
		dt, err := b.svc.Planning.Complete(ctx, user, strings.TrimPrefix(data, cbDonePrefix), b.now())
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("✅ Done: %s", escape(normalizeTitle(dt.Title))))
	case strings.HasPrefix(data, cbSkipPrefix):
		dt, err := b.svc.Planning.Skip(ctx, user, strings.TrimPrefix(data, cbSkipPrefix))
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("⏭ Skipped: %s", escape(normalizeTitle(dt.Title))))
	case strings.HasPrefix(data, cbUndoPrefix):
		dt, err := b.svc.Planning.Uncomplete(ctx, user, strings.TrimPrefix(data, cbUndoPrefix))
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("↩️ Back to open: %s", escape(normalizeTitle(dt.Title))))
	case strings.HasPrefix(data, cbReviewPrefix):
		outcome, id, err := parseReviewData(data)
		if err != nil {
			return nil
		}
		dt, err := b.svc.Review.Review(ctx, user, id, outcome)
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendText(chatID, reviewConfirmation(dt.Title, outcome))
	case strings.HasPrefix(data, cbPlanPrefix):
		return b.planTask(ctx, chatID, user, strings.TrimPrefix(data, cbPlanPrefix), "")
	default:
		return nil
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelToday):
		return true, b.handleToday(ctx, msg)
	case strings.ToLower(menuLabelBacklog):
		return true, b.handleBacklog(ctx, msg)
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelReview):
		return true, b.handleReview(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	defaults := model.User{
		Timezone:                "UTC",
		MorningNotificationTime: defaultMorning,
		EveningNotificationTime: defaultEvening,
	}
	if b.config != nil && b.config.Timezone != "" {
		defaults.Timezone = b.config.Timezone
	}
	return b.svc.Users.UpsertFromTelegram(ctx, from.ID, defaults)
}

const (
	defaultMorning = "07:00"
	defaultEvening = "21:30"
)

func (b *Bot) registerRoutine(user *model.User) {
	if b.svc.Routine == nil {
		return
	}
	if err := b.svc.Routine.Register(user); err != nil {
		b.log.Warnw("register routine", "user_id", user.ID, "error", err)
	}
}

func (b *Bot) today(user *model.User) (model.Date, error) {
	return user.Today(b.now())
}

func (b *Bot) sendError(chatID int64, err error) error {
	text, known := userError(err)
	if !known {
		b.log.Errorw("request failed", "chat_id", chatID, "error", err)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
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

// userError maps domain errors to chat replies. known is false for
// unexpected failures.
func userError(err error) (text string, known bool) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "Not found. It may have been removed.", true
	case errors.Is(err, model.ErrAlreadyPlanned):
		return "That task is already planned for today.", true
	case errors.Is(err, model.ErrAlreadyReviewed):
		return "That item was already reviewed.", true
	case errors.Is(err, model.ErrNotReviewable):
		return "Only open items can be reviewed.", true
	case errors.Is(err, model.ErrInvalidTransition):
		return "That change isn't possible for this item.", true
	case errors.Is(err, model.ErrValidation):
		return "Please check the input: " + escape(err.Error()), true
	case errors.Is(err, model.ErrInvalidTimezone):
		return "Your timezone looks wrong. Fix it with /timezone.", true
	default:
		return "Something went wrong. Please try again.", false
	}
}
