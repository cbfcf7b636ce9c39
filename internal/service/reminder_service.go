package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"slate/internal/model"
	"slate/internal/repository"
)

// OnceScheduler runs a job once at an instant, keyed so it can be cancelled.
type OnceScheduler interface {
	ScheduleOnce(key string, at time.Time, job func()) error
	Cancel(key string)
}

// Notifier delivers a rendered message to a user.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, text string) error
}

// Reminder is the payload of a per-task notification.
type Reminder struct {
	UserID      string
	DailyTaskID string
	Title       string
	Date        model.Date
	Time        string
	FireAt      time.Time
}

// ReminderService schedules per-task reminders and builds human-readable
// summaries for the morning and evening notifications.
type ReminderService struct {
	store        *repository.Store
	query        *QueryService
	sched        OnceScheduler
	notifier     Notifier
	dueNudgeDays []int
	now          func() time.Time
	log          *zap.SugaredLogger
}

func NewReminderService(store *repository.Store, query *QueryService, sched OnceScheduler, dueNudgeDays []int, log *zap.SugaredLogger) *ReminderService {
	return &ReminderService{
		store:        store,
		query:        query,
		sched:        sched,
		dueNudgeDays: dueNudgeDays,
		now:          time.Now,
		log:          log.Named("reminders"),
	}
}

// SetNotifier wires the delivery channel. Without one, reminders are logged.
func (r *ReminderService) SetNotifier(n Notifier) {
	r.notifier = n
}

func reminderKey(dailyTaskID string) string { return "reminder:" + dailyTaskID }

// Schedule registers payload to fire at fireAt under entityID, replacing any
// earlier reminder for the same entity.
func (r *ReminderService) Schedule(entityID string, fireAt time.Time, payload Reminder) error {
	return r.sched.ScheduleOnce(reminderKey(entityID), fireAt, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.deliver(ctx, payload); err != nil {
			r.log.Warnw("reminder delivery failed", "daily_task_id", payload.DailyTaskID, "error", err)
		}
	})
}

func (r *ReminderService) Cancel(entityID string) {
	r.sched.Cancel(reminderKey(entityID))
}

// Sync schedules reminders for pending, unreviewed, timed items and cancels
// them for everything else. Errors are logged and never returned, so a
// failed schedule cannot undo the write that triggered it.
func (r *ReminderService) Sync(ctx context.Context, user *model.User, items ...model.DailyTask) {
	loc, err := user.Location()
	if err != nil {
		r.log.Warnw("skip reminders", "user_id", user.ID, "error", err)
		return
	}
	now := r.now()
	for i := range items {
		dt := &items[i]
		fireAt, timed := dt.FireTime(loc)
		if !timed || dt.Status != model.StatusPending || dt.Reviewed() || !fireAt.After(now) {
			r.Cancel(dt.ID)
			continue
		}
		payload := Reminder{
			UserID:      user.ID,
			DailyTaskID: dt.ID,
			Title:       dt.Title,
			Date:        dt.Date,
			Time:        *dt.Time,
			FireAt:      fireAt,
		}
		if err := r.Schedule(dt.ID, fireAt, payload); err != nil {
			if errors.Is(err, ErrPastFireTime) {
				continue
			}
			r.log.Warnw("schedule reminder", "daily_task_id", dt.ID, "error", err)
			continue
		}
		r.log.Debugw("reminder scheduled", "daily_task_id", dt.ID, "fire_at", fireAt)
	}
}

// ScheduleDay (re)schedules reminders for every item of date.
func (r *ReminderService) ScheduleDay(ctx context.Context, user *model.User, date model.Date) error {
	items, err := r.query.Day(ctx, user, date)
	if err != nil {
		return err
	}
	r.Sync(ctx, user, items...)
	return nil
}

func (r *ReminderService) deliver(ctx context.Context, payload Reminder) error {
	user, err := r.store.Users.FindByID(ctx, payload.UserID)
	if err != nil {
		return err
	}
	dt, err := r.store.DailyTasks.FindByID(ctx, payload.UserID, payload.DailyTaskID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if dt.Status != model.StatusPending || dt.Reviewed() {
		return nil
	}

	text := fmt.Sprintf("⏰ <b>%s</b> at %s", html.EscapeString(strings.TrimSpace(dt.Title)), payload.Time)
	return r.notify(ctx, user, text)
}

func (r *ReminderService) notify(ctx context.Context, user *model.User, text string) error {
	if r.notifier == nil {
		r.log.Infow("notification", "user_id", user.ID, "text", text)
		return nil
	}
	return r.notifier.Notify(ctx, user, text)
}

// MorningDigest renders the "plan your day" message: top items, how many more
// are waiting, and backlog tasks whose due date is coming up.
func (r *ReminderService) MorningDigest(ctx context.Context, user *model.User, today model.Date) (string, error) {
	top, err := r.query.TodayTop(ctx, user, today, 0)
	if err != nil {
		return "", err
	}
	rest, err := r.query.TodayRest(ctx, user, today, 0)
	if err != nil {
		return "", err
	}
	nudgeDates := make([]model.Date, 0, len(r.dueNudgeDays))
	for _, days := range r.dueNudgeDays {
		nudgeDates = append(nudgeDates, today.AddDays(days))
	}
	due, err := r.store.Tasks.ListDueOn(ctx, user.ID, nudgeDates)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("☀️ <b>Plan your day</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", today))

	if len(top) == 0 {
		builder.WriteString("— nothing planned yet\n")
	}
	for _, dt := range top {
		builder.WriteString(FormatDailyTask(dt))
	}
	if len(rest) > 0 {
		builder.WriteString(fmt.Sprintf("… and %d more\n", len(rest)))
	}

	if len(due) > 0 {
		builder.WriteString("\n📌 <b>Coming up</b>\n")
		for _, task := range due {
			builder.WriteString(FormatDue(task, today))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// EveningPrompt renders the "review your day" message.
func (r *ReminderService) EveningPrompt(ctx context.Context, user *model.User, today model.Date) (string, error) {
	progress, err := r.query.Progress(ctx, user, today)
	if err != nil {
		return "", err
	}
	unfinished, err := r.query.Unfinished(ctx, user, today)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("🌙 <b>Review your day</b>\n")
	builder.WriteString(fmt.Sprintf("✅ %d of %d done\n\n", progress.Completed, progress.Total))
	if len(unfinished) == 0 {
		builder.WriteString("Nothing left open. Nice work.")
		return builder.String(), nil
	}
	for _, dt := range unfinished {
		builder.WriteString(FormatDailyTask(dt))
	}
	builder.WriteString("\nUse /review to move, backlog or drop them. Anything left open rolls to tomorrow.")
	return builder.String(), nil
}

// SendMorning and SendEvening render and deliver the nudges.
func (r *ReminderService) SendMorning(ctx context.Context, user *model.User, today model.Date) error {
	text, err := r.MorningDigest(ctx, user, today)
	if err != nil {
		return err
	}
	return r.notify(ctx, user, text)
}

func (r *ReminderService) SendEvening(ctx context.Context, user *model.User, today model.Date) error {
	text, err := r.EveningPrompt(ctx, user, today)
	if err != nil {
		return err
	}
	return r.notify(ctx, user, text)
}

// FormatDailyTask renders one line of a day list in Telegram HTML.
func FormatDailyTask(dt model.DailyTask) string {
	var sb strings.Builder
	sb.WriteString(priorityIcon(dt.Priority))
	sb.WriteByte(' ')
	if dt.Status == model.StatusCompleted {
		sb.WriteString("<s>" + html.EscapeString(strings.TrimSpace(dt.Title)) + "</s>")
	} else {
		sb.WriteString(html.EscapeString(strings.TrimSpace(dt.Title)))
	}
	if dt.Time != nil {
		sb.WriteString(fmt.Sprintf(" · %s", *dt.Time))
	}
	if dt.Source == model.SourceRecurring {
		sb.WriteString(" ♻️")
	}
	sb.WriteByte('\n')
	return sb.String()
}

// FormatDue renders a backlog task with how far away its due date is.
func FormatDue(task model.Task, today model.Date) string {
	title := html.EscapeString(strings.TrimSpace(task.Title))
	if task.DueDate == nil {
		return fmt.Sprintf("• %s\n", title)
	}
	days := today.DaysUntil(*task.DueDate)
	switch {
	case days < 0:
		return fmt.Sprintf("⚠️ %s · due %s, <b>overdue</b>\n", title, *task.DueDate)
	case days == 0:
		return fmt.Sprintf("⏳ %s · due today\n", title)
	case days == 1:
		return fmt.Sprintf("⏳ %s · due tomorrow\n", title)
	default:
		return fmt.Sprintf("📆 %s · due %s (in %d days)\n", title, *task.DueDate, days)
	}
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}
