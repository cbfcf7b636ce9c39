package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"slate/internal/model"
	"slate/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stagePriority
	stageDueDate
	stageRepeat
	stageWeekdays
	stageTime
	stageCustomTitle
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.log.Debugw("start new task conversation", "from", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what is it called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title can't be empty.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "🎯 How important is it?", priorityKeyboard())
	case stagePriority:
		priority, ok := parsePriority(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick High, Medium or Low.", priorityKeyboard())
		}
		state.input.Priority = string(priority)
		state.stage = stageRepeat
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Does it repeat?", repeatKeyboard())
	case stageRepeat:
		switch strings.ToLower(text) {
		case strings.ToLower(btnOnce), "once", "no":
			state.stage = stageDueDate
			return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2026-11-30</code>, or Skip.", skipKeyboard())
		case strings.ToLower(btnDaily), "daily":
			state.input.Recurrence = &service.RecurrenceInput{Frequency: string(model.FrequencyDaily)}
			state.stage = stageTime
			return b.sendWithReplyMarkup(msg.Chat.ID, "🕖 At what time? <code>HH:MM</code>, or Skip.", skipKeyboard())
		case strings.ToLower(btnWeekly), "weekly":
			state.input.Recurrence = &service.RecurrenceInput{Frequency: string(model.FrequencyWeekly)}
			state.stage = stageWeekdays
			return b.sendWithReplyMarkup(msg.Chat.ID, "📆 On which days? e.g. <code>mon, thu</code>", cancelKeyboard())
		default:
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick Once, Daily or Weekly.", repeatKeyboard())
		}
	case stageDueDate:
		if !isSkipInput(text) {
			due, err := model.ParseDate(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "I can't read that date. Use <code>2026-11-30</code> or Skip.", skipKeyboard())
			}
			state.input.DueDate = due.String()
		}
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	case stageWeekdays:
		days, err := parseWeekdays(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "List days like <code>mon, wed, fri</code>.", cancelKeyboard())
		}
		state.input.Recurrence.DaysOfWeek = days
		state.stage = stageTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "🕖 At what time? <code>HH:MM</code>, or Skip.", skipKeyboard())
	case stageTime:
		if !isSkipInput(text) {
			if _, _, err := model.ParseClock(text); err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Use <code>HH:MM</code>, e.g. <code>07:30</code>, or Skip.", skipKeyboard())
			}
			state.input.Recurrence.Time = text
		}
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	case stageCustomTitle:
		b.clearConversation(msg.From.ID)
		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		return b.addCustom(ctx, msg.Chat.ID, user, text)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Start again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.svc.Tasks.CreateTask(ctx, user, input)
	if err != nil {
		return b.sendError(chatID, err)
	}
	b.log.Infow("task created", "task_id", task.ID, "user_id", user.ID, "recurring", task.IsRecurring)

	if task.IsRecurring {
		// A habit created today shows up in today's plan right away.
		if today, err := b.today(user); err == nil {
			if _, err := b.svc.Generator.Generate(ctx, user, today); err != nil {
				b.log.Warnw("generate after create", "user_id", user.ID, "error", err)
			}
		}
	}

	return b.sendText(chatID, renderTaskSaved(task))
}
