package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"slate/internal/config"
	"slate/internal/model"
	"slate/internal/repository"
	"slate/internal/service"
)

// app holds everything a command needs once config and storage are ready.
type app struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	db        *gorm.DB
	store     *repository.Store
	sched     *service.SchedulerService
	query     *service.QueryService
	reminders *service.ReminderService
	review    *service.ReviewService
	generator *service.Generator
	planning  *service.PlanningService
	tasks     *service.TaskService
	routine   *service.RoutineService
}

func newApp(cfg config.Config, log *zap.SugaredLogger) (*app, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db, store: repository.NewStore(db)}
	locks := service.NewUserLocks()

	a.sched = service.NewSchedulerService(loc)
	a.query = service.NewQueryService(a.store, cfg.Planner.TopN, cfg.Planner.DueSoonDays)
	a.reminders = service.NewReminderService(a.store, a.query, a.sched, cfg.Planner.DueNudgeDays, log)
	a.review = service.NewReviewService(a.store, locks, a.reminders, log)
	a.generator = service.NewGenerator(a.store, locks, a.review, a.reminders, cfg.Planner.MaxCatchUpDays, log)
	a.planning = service.NewPlanningService(a.store, locks, a.reminders, log)
	a.tasks = service.NewTaskService(a.store, log)
	a.routine = service.NewRoutineService(a.store, a.generator, a.reminders, a.sched, cfg.Schedule.JobTimeout, log)
	return a, nil
}

func (a *app) Close() {
	sqlDB, err := a.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.log.Warnw("close db", "error", err)
	}
}

// resolveUser accepts an internal user ID or a Telegram chat ID.
func (a *app) resolveUser(ctx context.Context, ref string) (*model.User, error) {
	if ref == "" {
		return nil, errors.New("--user is required")
	}
	user, err := a.store.Users.FindByID(ctx, ref)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	telegramID, convErr := strconv.ParseInt(ref, 10, 64)
	if convErr != nil {
		return nil, fmt.Errorf("user %q: %w", ref, model.ErrNotFound)
	}
	return a.store.Users.FindByTelegramID(ctx, telegramID)
}

// resolveDate falls back to the user's local today when raw is empty.
func resolveDate(user *model.User, raw string, now time.Time) (model.Date, error) {
	if raw == "" {
		return user.Today(now)
	}
	return model.ParseDate(raw)
}

// planDay builds day for user. Catch-up never replays past the user's local
// today, so a day that has not ended is never closed; later days are only
// generated.
func (a *app) planDay(ctx context.Context, user *model.User, day model.Date, now time.Time, catchUp bool) ([]model.DailyTask, error) {
	if !catchUp {
		return a.generator.Generate(ctx, user, day)
	}
	today, err := user.Today(now)
	if err != nil {
		return nil, err
	}
	if !day.After(today) {
		return a.generator.CatchUp(ctx, user, day)
	}
	if _, err := a.generator.CatchUp(ctx, user, today); err != nil {
		return nil, err
	}
	return a.generator.Generate(ctx, user, day)
}

// closeDay refuses days that have not started yet in the user's timezone.
func (a *app) closeDay(ctx context.Context, user *model.User, day model.Date, now time.Time) (service.ClosedDay, error) {
	today, err := user.Today(now)
	if err != nil {
		return service.ClosedDay{}, err
	}
	if day.After(today) {
		return service.ClosedDay{}, fmt.Errorf("%w: %s is still ahead, today is %s", model.ErrInvalidTransition, day, today)
	}
	return a.review.CloseDay(ctx, user, day)
}
