package service

import (
	"context"

	"slate/internal/model"
)

// ReminderSync is told about every DailyTask a write touched, after the write
// has committed. Implementations schedule or cancel reminders and must not
// report failures back to the writer.
type ReminderSync interface {
	Sync(ctx context.Context, user *model.User, items ...model.DailyTask)
}

type noopReminders struct{}

func (noopReminders) Sync(context.Context, *model.User, ...model.DailyTask) {}
