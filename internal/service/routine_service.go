package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"slate/internal/model"
	"slate/internal/repository"
)

// DailyScheduler registers keyed daily and periodic jobs.
type DailyScheduler interface {
	ScheduleDailyIn(key, tz, timeStr string, job func()) error
	Cancel(key string)
}

// RoutineService drives the day cycle for every user: the morning catch-up
// and digest, the evening review prompt, and the periodic sweep that closes
// days nobody reviewed.
type RoutineService struct {
	store      *repository.Store
	generator  *Generator
	reminders  *ReminderService
	sched      DailyScheduler
	jobTimeout time.Duration
	now        func() time.Time
	log        *zap.SugaredLogger
}

func NewRoutineService(store *repository.Store, generator *Generator, reminders *ReminderService, sched DailyScheduler, jobTimeout time.Duration, log *zap.SugaredLogger) *RoutineService {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &RoutineService{
		store:      store,
		generator:  generator,
		reminders:  reminders,
		sched:      sched,
		jobTimeout: jobTimeout,
		now:        time.Now,
		log:        log.Named("routine"),
	}
}

// RegisterAll installs the daily jobs of every known user.
func (r *RoutineService) RegisterAll(ctx context.Context) error {
	users, err := r.store.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		if err := r.Register(&users[i]); err != nil {
			r.log.Warnw("register routine", "user_id", users[i].ID, "error", err)
		}
	}
	return nil
}

// Register (re)installs the morning and evening jobs of user in its own
// timezone. Call it again after the user changes timezone or times.
func (r *RoutineService) Register(user *model.User) error {
	userID := user.ID
	if err := r.sched.ScheduleDailyIn("morning:"+userID, user.Timezone, user.MorningNotificationTime, func() {
		r.runJob("morning", userID, r.Morning)
	}); err != nil {
		return fmt.Errorf("morning job: %w", err)
	}
	if err := r.sched.ScheduleDailyIn("evening:"+userID, user.Timezone, user.EveningNotificationTime, func() {
		r.runJob("evening", userID, r.Evening)
	}); err != nil {
		return fmt.Errorf("evening job: %w", err)
	}
	return nil
}

func (r *RoutineService) Unregister(userID string) {
	r.sched.Cancel("morning:" + userID)
	r.sched.Cancel("evening:" + userID)
}

func (r *RoutineService) runJob(name, userID string, job func(ctx context.Context, userID string) error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()
	if err := job(ctx, userID); err != nil {
		r.log.Errorw("routine job failed", "job", name, "user_id", userID, "error", err)
	}
}

// Morning brings the user's days up to date, schedules today's reminders and
// sends the plan-your-day digest.
func (r *RoutineService) Morning(ctx context.Context, userID string) error {
	user, today, err := r.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := r.generator.CatchUp(ctx, user, today); err != nil {
		return err
	}
	if err := r.reminders.ScheduleDay(ctx, user, today); err != nil {
		return err
	}
	return r.reminders.SendMorning(ctx, user, today)
}

// Evening sends the review prompt for today.
func (r *RoutineService) Evening(ctx context.Context, userID string) error {
	user, today, err := r.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	return r.reminders.SendEvening(ctx, user, today)
}

// Sweep runs catch-up for every user. Crossing local midnight closes the
// previous day and materializes the new one even if the user never opens the
// app.
func (r *RoutineService) Sweep(ctx context.Context) error {
	users, err := r.store.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		user := &users[i]
		today, err := user.Today(r.now())
		if err != nil {
			r.log.Warnw("sweep skipped user", "user_id", user.ID, "error", err)
			continue
		}
		if user.LastGeneratedDate != nil && !user.LastGeneratedDate.Before(today) {
			continue
		}
		if _, err := r.generator.CatchUp(ctx, user, today); err != nil {
			r.log.Errorw("sweep catch-up failed", "user_id", user.ID, "error", err)
			continue
		}
		if err := r.reminders.ScheduleDay(ctx, user, today); err != nil {
			r.log.Warnw("sweep reminders", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (r *RoutineService) loadUser(ctx context.Context, userID string) (*model.User, model.Date, error) {
	user, err := r.store.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	today, err := user.Today(r.now())
	if err != nil {
		return nil, "", err
	}
	return user, today, nil
}
