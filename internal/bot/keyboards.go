package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"slate/internal/model"
)

const (
	btnSkip          = "⏭️ Skip"
	btnCancelDialog  = "⏪ Cancel"
	btnHigh          = "🔴 High"
	btnMedium        = "🟡 Medium"
	btnLow           = "🟢 Low"
	btnOnce          = "Once"
	btnDaily         = "Daily"
	btnWeekly        = "Weekly"
	menuLabelToday   = "📅 Today"
	menuLabelBacklog = "📥 Backlog"
	menuLabelNewTask = "➕ New task"
	menuLabelReview  = "🌙 Review"
	menuLabelHelp    = "ℹ️ Help"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelBacklog),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelReview),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnHigh),
			tgbotapi.NewKeyboardButton(btnMedium),
			tgbotapi.NewKeyboardButton(btnLow),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func repeatKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnOnce),
			tgbotapi.NewKeyboardButton(btnDaily),
			tgbotapi.NewKeyboardButton(btnWeekly),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// todayButtons gives every open item done/skip buttons and every finished
// one an undo button.
func todayButtons(pending, completed []model.DailyTask) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, dt := range pending {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %d · %s", i+1, shortTitle(dt.Title, 20)), cbDonePrefix+dt.ID),
			tgbotapi.NewInlineKeyboardButtonData("⏭", cbSkipPrefix+dt.ID),
		))
	}
	for _, dt := range completed {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ "+shortTitle(dt.Title, 24), cbUndoPrefix+dt.ID),
		))
	}
	return rows
}

// reviewButtons offers the outcomes valid for dt. Custom items have no
// backlog to return to.
func reviewButtons(dt model.DailyTask) []tgbotapi.InlineKeyboardButton {
	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("➡️ Tomorrow", reviewData(model.OutcomeMoved, dt.ID)),
	}
	if !dt.IsCustom() {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("📥 Backlog", reviewData(model.OutcomeBacklogged, dt.ID)))
	}
	row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑 Drop", reviewData(model.OutcomeDropped, dt.ID)))
	return row
}

func reviewData(outcome model.ReviewOutcome, id string) string {
	return cbReviewPrefix + string(outcome) + ":" + id
}

func parseReviewData(data string) (model.ReviewOutcome, string, error) {
	raw := strings.TrimPrefix(data, cbReviewPrefix)
	outcome, id, ok := strings.Cut(raw, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("malformed review callback %q", data)
	}
	parsed, err := model.ParseOutcome(outcome)
	if err != nil {
		return "", "", err
	}
	return parsed, id, nil
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}
