package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"slate/internal/model"
	"slate/internal/repository"
)

// PullInput pulls a backlog task into a day, optionally at a time.
type PullInput struct {
	TaskID            string `validate:"required"`
	Date              string `validate:"required,ymd"`
	Time              string `validate:"omitempty,hhmm"`
	ReminderOffsetMin int    `validate:"min=0,max=1440"`
}

// CustomInput is a one-off item typed in during planning.
type CustomInput struct {
	Date              string `validate:"required,ymd"`
	Title             string `validate:"required,max=200"`
	Priority          string `validate:"omitempty,oneof=high medium low"`
	Time              string `validate:"omitempty,hhmm"`
	ReminderOffsetMin int    `validate:"min=0,max=1440"`
}

// PlanningService covers the user-driven edits of a day: pulling from the
// backlog, custom items, status toggles and manual ordering.
type PlanningService struct {
	store     *repository.Store
	locks     *UserLocks
	reminders ReminderSync
	validate  *validator.Validate
	log       *zap.SugaredLogger
}

func NewPlanningService(store *repository.Store, locks *UserLocks, reminders ReminderSync, log *zap.SugaredLogger) *PlanningService {
	if reminders == nil {
		reminders = noopReminders{}
	}
	return &PlanningService{
		store:     store,
		locks:     locks,
		reminders: reminders,
		validate:  newValidator(),
		log:       log.Named("planning"),
	}
}

// PullFromBacklog creates a backlog-sourced DailyTask for a non-recurring,
// non-archived task. A task can be planned at most once per date.
func (s *PlanningService) PullFromBacklog(ctx context.Context, user *model.User, input PullInput) (*model.DailyTask, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(input.Date)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	var dt model.DailyTask
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		task, err := tx.Tasks.FindByID(ctx, user.ID, input.TaskID)
		if err != nil {
			return err
		}
		if task.IsRecurring {
			return fmt.Errorf("%w: %q is a recurring template", model.ErrInvalidTransition, task.Title)
		}
		if task.Archived {
			return fmt.Errorf("%w: %q is archived", model.ErrInvalidTransition, task.Title)
		}
		exists, err := tx.DailyTasks.ExistsForTask(ctx, task.ID, date)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %q on %s", model.ErrAlreadyPlanned, task.Title, date)
		}

		dt = model.Snapshot(task, date, model.SourceBacklog)
		if input.Time != "" {
			clock := input.Time
			dt.Time = &clock
			dt.ReminderOffsetMin = input.ReminderOffsetMin
		}
		if dt.SortOrder, err = nextSortOrder(ctx, tx, user.ID, date); err != nil {
			return err
		}
		return tx.DailyTasks.Create(ctx, &dt)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("backlog task planned", "user_id", user.ID, "task_id", input.TaskID, "date", date)
	s.reminders.Sync(ctx, user, dt)
	return &dt, nil
}

// AddCustom creates a one-off DailyTask with no backing Task.
func (s *PlanningService) AddCustom(ctx context.Context, user *model.User, input CustomInput) (*model.DailyTask, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(input.Date)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	dt := model.DailyTask{
		UserID:            user.ID,
		Date:              date,
		Source:            model.SourceCustom,
		Title:             input.Title,
		Priority:          model.PriorityMedium,
		ReminderOffsetMin: input.ReminderOffsetMin,
		Status:            model.StatusPending,
	}
	if input.Priority != "" {
		dt.Priority = model.Priority(input.Priority)
	}
	if input.Time != "" {
		clock := input.Time
		dt.Time = &clock
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if dt.SortOrder, err = nextSortOrder(ctx, tx, user.ID, date); err != nil {
			return err
		}
		return tx.DailyTasks.Create(ctx, &dt)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("custom task added", "user_id", user.ID, "daily_task_id", dt.ID, "date", date)
	s.reminders.Sync(ctx, user, dt)
	return &dt, nil
}

// Complete marks a pending item done. Completing a backlog-sourced item
// archives its backlog task.
func (s *PlanningService) Complete(ctx context.Context, user *model.User, dailyTaskID string, at time.Time) (*model.DailyTask, error) {
	return s.transition(ctx, user, dailyTaskID, func(tx *repository.Store, dt *model.DailyTask) error {
		if dt.Status != model.StatusPending {
			return fmt.Errorf("%w: %s is already %s", model.ErrInvalidTransition, dt.ID, dt.Status)
		}
		completedAt := at.UTC()
		if err := tx.DailyTasks.SetStatus(ctx, dt, model.StatusCompleted, &completedAt); err != nil {
			return err
		}
		return setBacklogArchived(ctx, tx, dt, true)
	})
}

// Uncomplete reverts a completed item to pending while its day is still open.
// Items of a closed day stay completed: no later sweep would resolve them.
func (s *PlanningService) Uncomplete(ctx context.Context, user *model.User, dailyTaskID string) (*model.DailyTask, error) {
	return s.transition(ctx, user, dailyTaskID, func(tx *repository.Store, dt *model.DailyTask) error {
		if dt.Status != model.StatusCompleted {
			return fmt.Errorf("%w: %s is %s, not completed", model.ErrInvalidTransition, dt.ID, dt.Status)
		}
		owner, err := tx.Users.FindByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if closed := owner.LastClosedDate; closed != nil && !dt.Date.After(*closed) {
			return fmt.Errorf("%w: %s is closed", model.ErrInvalidTransition, dt.Date)
		}
		if err := tx.DailyTasks.SetStatus(ctx, dt, model.StatusPending, nil); err != nil {
			return err
		}
		return setBacklogArchived(ctx, tx, dt, false)
	})
}

// Skip marks a pending item as deliberately not done. Skipped is terminal.
func (s *PlanningService) Skip(ctx context.Context, user *model.User, dailyTaskID string) (*model.DailyTask, error) {
	return s.transition(ctx, user, dailyTaskID, func(tx *repository.Store, dt *model.DailyTask) error {
		if dt.Status != model.StatusPending {
			return fmt.Errorf("%w: %s is already %s", model.ErrInvalidTransition, dt.ID, dt.Status)
		}
		return tx.DailyTasks.SetStatus(ctx, dt, model.StatusSkipped, nil)
	})
}

func (s *PlanningService) transition(ctx context.Context, user *model.User, dailyTaskID string, apply func(tx *repository.Store, dt *model.DailyTask) error) (*model.DailyTask, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	var changed *model.DailyTask
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		dt, err := tx.DailyTasks.FindByID(ctx, user.ID, dailyTaskID)
		if err != nil {
			return err
		}
		if dt.Reviewed() {
			return fmt.Errorf("%w: %s was already reviewed", model.ErrInvalidTransition, dt.ID)
		}
		if err := apply(tx, dt); err != nil {
			return err
		}
		changed = dt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("daily task status changed", "user_id", user.ID, "daily_task_id", changed.ID, "status", changed.Status)
	s.reminders.Sync(ctx, user, *changed)
	return changed, nil
}

func setBacklogArchived(ctx context.Context, tx *repository.Store, dt *model.DailyTask, archived bool) error {
	if dt.Source != model.SourceBacklog || dt.TaskID == nil {
		return nil
	}
	task, err := tx.Tasks.FindByID(ctx, dt.UserID, *dt.TaskID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if task.IsRecurring || task.Archived == archived {
		return nil
	}
	return tx.Tasks.SetArchived(ctx, task, archived)
}

// Reorder assigns sort_order following ids. Items of the day that are not
// listed keep their relative order after the listed ones.
func (s *PlanningService) Reorder(ctx context.Context, user *model.User, date model.Date, ids []string) ([]model.DailyTask, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	var items []model.DailyTask
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		day, err := tx.DailyTasks.ListByDate(ctx, user.ID, date)
		if err != nil {
			return err
		}
		byID := make(map[string]*model.DailyTask, len(day))
		for i := range day {
			byID[day[i].ID] = &day[i]
		}

		ordered := make([]*model.DailyTask, 0, len(day))
		listed := make(map[string]bool, len(ids))
		for _, id := range ids {
			dt, ok := byID[id]
			if !ok {
				return fmt.Errorf("reorder %s: daily task %s: %w", date, id, model.ErrNotFound)
			}
			if listed[id] {
				return fmt.Errorf("%w: daily task %s listed twice", model.ErrValidation, id)
			}
			listed[id] = true
			ordered = append(ordered, dt)
		}
		for i := range day {
			if !listed[day[i].ID] {
				ordered = append(ordered, &day[i])
			}
		}

		for pos, dt := range ordered {
			if dt.SortOrder == pos {
				continue
			}
			if err := tx.DailyTasks.SetSortOrder(ctx, dt, pos); err != nil {
				return err
			}
		}
		items, err = tx.DailyTasks.ListByDate(ctx, user.ID, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func nextSortOrder(ctx context.Context, tx *repository.Store, userID string, date model.Date) (int, error) {
	maxOrder, err := tx.DailyTasks.MaxSortOrder(ctx, userID, date)
	if err != nil {
		return 0, err
	}
	return maxOrder + 1, nil
}
