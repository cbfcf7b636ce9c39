package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"slate/internal/model"
	"slate/internal/repository"
)

// Generator materializes a user's DailyTasks for a date from recurring
// templates and from the previous day's moved items. It is the only writer
// of auto-generated rows; backlog pulls and custom items come from
// PlanningService.
type Generator struct {
	store          *repository.Store
	locks          *UserLocks
	review         *ReviewService
	reminders      ReminderSync
	maxCatchUpDays int
	log            *zap.SugaredLogger
}

func NewGenerator(store *repository.Store, locks *UserLocks, review *ReviewService, reminders ReminderSync, maxCatchUpDays int, log *zap.SugaredLogger) *Generator {
	if reminders == nil {
		reminders = noopReminders{}
	}
	if maxCatchUpDays <= 0 {
		maxCatchUpDays = 31
	}
	return &Generator{
		store:          store,
		locks:          locks,
		review:         review,
		reminders:      reminders,
		maxCatchUpDays: maxCatchUpDays,
		log:            log.Named("generator"),
	}
}

// Generate returns every DailyTask of date after materializing what is
// missing. It is idempotent: a second call for the same (user, date) creates
// nothing and returns the same set. Only CatchUp advances the user's
// last_generated_date.
func (g *Generator) Generate(ctx context.Context, user *model.User, date model.Date) ([]model.DailyTask, error) {
	if !date.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidDate, string(date))
	}
	unlock := g.locks.Lock(user.ID)
	defer unlock()

	items, created, err := g.generate(ctx, user, date, false)
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		g.reminders.Sync(ctx, user, created...)
	}
	return items, nil
}

// CatchUp replays every date the user has not been generated for, up to and
// including today, closing each previous day first so its moved items are
// available. Gaps longer than the catch-up window start at the window edge.
func (g *Generator) CatchUp(ctx context.Context, user *model.User, today model.Date) ([]model.DailyTask, error) {
	if !today.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidDate, string(today))
	}
	unlock := g.locks.Lock(user.ID)
	defer unlock()

	start := today
	if last := user.LastGeneratedDate; last != nil && last.Before(today) {
		start = last.AddDays(1)
	}
	if floor := today.AddDays(-g.maxCatchUpDays); start.Before(floor) {
		g.log.Warnw("catch-up gap truncated", "user_id", user.ID, "from", start, "to", floor)
		start = floor
	}

	var (
		items   []model.DailyTask
		created []model.DailyTask
	)
	for d := start; !d.After(today); d = d.AddDays(1) {
		prev := d.AddDays(-1)
		if user.LastClosedDate == nil || user.LastClosedDate.Before(prev) {
			closed, err := g.review.closeDay(ctx, user, prev)
			if err != nil {
				return nil, err
			}
			g.review.syncClosed(ctx, user, closed)
		}
		dayItems, dayCreated, err := g.generate(ctx, user, d, true)
		if err != nil {
			return nil, err
		}
		items = dayItems
		if d == today {
			created = dayCreated
		}
	}
	if len(created) > 0 {
		g.reminders.Sync(ctx, user, created...)
	}
	return items, nil
}

// generate expects the caller to hold the user's lock. With mark set it
// advances last_generated_date to date.
func (g *Generator) generate(ctx context.Context, user *model.User, date model.Date, mark bool) (items, created []model.DailyTask, err error) {
	loc, err := user.Location()
	if err != nil {
		return nil, nil, err
	}

	var marked bool
	err = g.store.Transaction(ctx, func(tx *repository.Store) error {
		created = created[:0]
		maxOrder, err := tx.DailyTasks.MaxSortOrder(ctx, user.ID, date)
		if err != nil {
			return err
		}
		next := maxOrder + 1

		templates, err := tx.Tasks.ListRecurring(ctx, user.ID)
		if err != nil {
			return err
		}
		for i := range templates {
			tpl := &templates[i]
			if !tpl.OccursOn(date, loc) {
				continue
			}
			exists, err := tx.DailyTasks.ExistsForTask(ctx, tpl.ID, date)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			dt := model.Snapshot(tpl, date, model.SourceRecurring)
			dt.SortOrder = next
			if err := tx.DailyTasks.Create(ctx, &dt); err != nil {
				return err
			}
			next++
			created = append(created, dt)
		}

		moved, err := tx.DailyTasks.ListByOutcome(ctx, user.ID, date.AddDays(-1), model.OutcomeMoved)
		if err != nil {
			return err
		}
		for i := range moved {
			prev := &moved[i]
			done, err := tx.DailyTasks.ExistsRolledFrom(ctx, prev.ID)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			if prev.TaskID != nil {
				exists, err := tx.DailyTasks.ExistsForTask(ctx, *prev.TaskID, date)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
			}
			dt := model.Rollover(prev, date)
			dt.SortOrder = next
			if err := tx.DailyTasks.Create(ctx, &dt); err != nil {
				return err
			}
			next++
			created = append(created, dt)
		}

		if mark {
			if marked, err = tx.Users.MarkGenerated(ctx, user, date); err != nil {
				return err
			}
		}

		items, err = tx.DailyTasks.ListByDate(ctx, user.ID, date)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generate %s: %w", date, err)
	}
	if marked {
		user.LastGeneratedDate = &date
	}
	if len(created) > 0 {
		g.log.Infow("daily tasks generated", "user_id", user.ID, "date", date, "created", len(created))
	}
	return items, created, nil
}
