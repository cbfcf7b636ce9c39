package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"slate/internal/model"
	"slate/internal/repository"
)

// RecurrenceInput is the user-facing shape of a recurrence rule.
type RecurrenceInput struct {
	Frequency         string `validate:"required,oneof=daily weekly"`
	DaysOfWeek        []int  `validate:"omitempty,dive,min=0,max=6"`
	Time              string `validate:"omitempty,hhmm"`
	ReminderOffsetMin int    `validate:"min=0,max=1440"`
}

// TaskInput represents data required to create or edit a task.
type TaskInput struct {
	Title      string           `validate:"required,max=200"`
	Priority   string           `validate:"omitempty,oneof=high medium low"`
	DueDate    string           `validate:"omitempty,ymd"`
	Recurrence *RecurrenceInput `validate:"omitempty"`
}

// TaskService wraps backlog and template management.
type TaskService struct {
	store    *repository.Store
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewTaskService(store *repository.Store, log *zap.SugaredLogger) *TaskService {
	return &TaskService{store: store, validate: newValidator(), log: log.Named("tasks")}
}

// CreateTask validates input and stores a backlog entry or a recurring
// template. Nothing is written when validation fails.
func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	task := model.Task{UserID: user.ID}
	if err := s.apply(&task, input); err != nil {
		return nil, err
	}
	if err := s.store.Tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.log.Infow("task created", "task_id", task.ID, "user_id", user.ID, "recurring", task.IsRecurring)
	return &task, nil
}

// UpdateTask rewrites a task's fields. DailyTasks already materialized keep
// their snapshot.
func (s *TaskService) UpdateTask(ctx context.Context, user *model.User, taskID string, input TaskInput) (*model.Task, error) {
	task, err := s.store.Tasks.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(task, input); err != nil {
		return nil, err
	}
	if err := s.store.Tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	s.log.Infow("task updated", "task_id", task.ID, "user_id", user.ID)
	return task, nil
}

func (s *TaskService) apply(task *model.Task, input TaskInput) error {
	if err := validateInput(s.validate, input); err != nil {
		return err
	}

	task.Title = strings.TrimSpace(input.Title)
	task.Priority = model.PriorityMedium
	if input.Priority != "" {
		task.Priority = model.Priority(input.Priority)
	}

	task.DueDate = nil
	if input.DueDate != "" {
		due, err := model.ParseDate(input.DueDate)
		if err != nil {
			return err
		}
		task.DueDate = &due
	}

	task.IsRecurring = input.Recurrence != nil
	task.Recurrence = nil
	if in := input.Recurrence; in != nil {
		rule := model.RecurrenceRule{
			Frequency:         model.Frequency(in.Frequency),
			ReminderOffsetMin: in.ReminderOffsetMin,
		}
		if rule.Frequency == model.FrequencyWeekly {
			rule.DaysOfWeek = append([]int{}, in.DaysOfWeek...)
		} else if len(in.DaysOfWeek) > 0 {
			rule.DaysOfWeek = in.DaysOfWeek
		}
		if in.Time != "" {
			clock := in.Time
			rule.Time = &clock
		}
		task.Recurrence = &rule
		// Recurring templates have no due date.
		task.DueDate = nil
	}

	return task.Validate()
}

// ArchiveTask soft-deletes a task. Materialized DailyTasks are left alone.
func (s *TaskService) ArchiveTask(ctx context.Context, user *model.User, taskID string) (*model.Task, error) {
	task, err := s.store.Tasks.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Archived {
		return task, nil
	}
	if err := s.store.Tasks.SetArchived(ctx, task, true); err != nil {
		return nil, err
	}
	s.log.Infow("task archived", "task_id", task.ID, "user_id", user.ID)
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID string) (*model.Task, error) {
	return s.store.Tasks.FindByID(ctx, user.ID, taskID)
}

func (s *TaskService) ListRecurring(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.store.Tasks.ListRecurring(ctx, user.ID)
}
