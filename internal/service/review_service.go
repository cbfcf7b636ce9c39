package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"slate/internal/model"
	"slate/internal/repository"
)

// ClosedDay is the result of an end-of-day sweep.
type ClosedDay struct {
	Date    model.Date
	Moved   []model.DailyTask
	Dropped []model.DailyTask
}

// ReviewService records end-of-day outcomes. It never creates next-day rows
// itself; the Generator materializes moved items.
type ReviewService struct {
	store     *repository.Store
	locks     *UserLocks
	reminders ReminderSync
	log       *zap.SugaredLogger
}

func NewReviewService(store *repository.Store, locks *UserLocks, reminders ReminderSync, log *zap.SugaredLogger) *ReviewService {
	if reminders == nil {
		reminders = noopReminders{}
	}
	return &ReviewService{store: store, locks: locks, reminders: reminders, log: log.Named("review")}
}

// Review applies outcome to a single unfinished item.
func (s *ReviewService) Review(ctx context.Context, user *model.User, dailyTaskID string, outcome model.ReviewOutcome) (*model.DailyTask, error) {
	if _, err := model.ParseOutcome(string(outcome)); err != nil {
		return nil, fmt.Errorf("%w: %q", err, outcome)
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	var reviewed *model.DailyTask
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		dt, err := tx.DailyTasks.FindByID(ctx, user.ID, dailyTaskID)
		if err != nil {
			return err
		}
		if dt.Reviewed() {
			return fmt.Errorf("%w: %s is %s", model.ErrAlreadyReviewed, dt.ID, *dt.ReviewOutcome)
		}
		if dt.Status != model.StatusPending {
			return fmt.Errorf("%w: %s is %s", model.ErrNotReviewable, dt.ID, dt.Status)
		}
		if outcome == model.OutcomeBacklogged {
			if dt.IsCustom() {
				return fmt.Errorf("%w: custom item %s has no backlog task", model.ErrInvalidTransition, dt.ID)
			}
			if err := restoreBacklogTask(ctx, tx, user.ID, *dt.TaskID); err != nil {
				return err
			}
		}
		if err := tx.DailyTasks.SetOutcome(ctx, dt, outcome); err != nil {
			if errors.Is(err, repository.ErrOutcomeSet) {
				return fmt.Errorf("%w: %s", model.ErrAlreadyReviewed, dt.ID)
			}
			return err
		}
		reviewed = dt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("daily task reviewed", "user_id", user.ID, "daily_task_id", reviewed.ID, "outcome", outcome)
	s.reminders.Sync(ctx, user, *reviewed)
	return reviewed, nil
}

// restoreBacklogTask un-archives a plain backlog entry so a backlogged item
// shows up in the backlog again. Templates are left as they are.
func restoreBacklogTask(ctx context.Context, tx *repository.Store, userID, taskID string) error {
	task, err := tx.Tasks.FindByID(ctx, userID, taskID)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: task %s no longer exists", model.ErrInvalidTransition, taskID)
	}
	if err != nil {
		return err
	}
	if task.IsRecurring || !task.Archived {
		return nil
	}
	return tx.Tasks.SetArchived(ctx, task, false)
}

// CloseDay is the automatic end-of-day sweep for date. Unreviewed pending
// items with a live template or backlog task are moved to the next day;
// custom items and items whose task is gone or archived are dropped. Calling
// it again for the same date changes nothing.
func (s *ReviewService) CloseDay(ctx context.Context, user *model.User, date model.Date) (ClosedDay, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	closed, err := s.closeDay(ctx, user, date)
	if err != nil {
		return ClosedDay{}, err
	}
	s.syncClosed(ctx, user, closed)
	return closed, nil
}

func (s *ReviewService) syncClosed(ctx context.Context, user *model.User, closed ClosedDay) {
	touched := make([]model.DailyTask, 0, len(closed.Moved)+len(closed.Dropped))
	touched = append(touched, closed.Moved...)
	touched = append(touched, closed.Dropped...)
	if len(touched) > 0 {
		s.reminders.Sync(ctx, user, touched...)
	}
}

// closeDay expects the caller to hold the user's lock.
func (s *ReviewService) closeDay(ctx context.Context, user *model.User, date model.Date) (ClosedDay, error) {
	closed := ClosedDay{Date: date}
	var marked bool
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		items, err := tx.DailyTasks.ListUnreviewed(ctx, user.ID, date)
		if err != nil {
			return err
		}
		for i := range items {
			dt := &items[i]
			outcome, err := autoOutcome(ctx, tx, dt)
			if err != nil {
				return err
			}
			if err := tx.DailyTasks.SetOutcome(ctx, dt, outcome); err != nil {
				if errors.Is(err, repository.ErrOutcomeSet) {
					continue
				}
				return err
			}
			if outcome == model.OutcomeMoved {
				closed.Moved = append(closed.Moved, *dt)
			} else {
				closed.Dropped = append(closed.Dropped, *dt)
			}
		}
		marked, err = tx.Users.MarkClosed(ctx, user, date)
		return err
	})
	if err != nil {
		return ClosedDay{}, fmt.Errorf("close day %s: %w", date, err)
	}
	if marked {
		user.LastClosedDate = &date
	}
	if len(closed.Moved)+len(closed.Dropped) > 0 {
		s.log.Infow("day closed", "user_id", user.ID, "date", date, "moved", len(closed.Moved), "dropped", len(closed.Dropped))
	}
	return closed, nil
}

// autoOutcome picks the default outcome for an item nobody reviewed.
func autoOutcome(ctx context.Context, tx *repository.Store, dt *model.DailyTask) (model.ReviewOutcome, error) {
	if dt.IsCustom() {
		return model.OutcomeDropped, nil
	}
	task, err := tx.Tasks.FindByID(ctx, dt.UserID, *dt.TaskID)
	if errors.Is(err, model.ErrNotFound) {
		return model.OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}
	if task.Archived {
		return model.OutcomeDropped, nil
	}
	return model.OutcomeMoved, nil
}
