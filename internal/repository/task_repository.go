package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"slate/internal/model"
)

// backlogOrder sorts by due date ascending with undated items last.
const backlogOrder = "due_date IS NULL, due_date ASC, created_at ASC, id ASC"

// TaskRepository handles CRUD for backlog entries and recurring templates.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, notFound("find task", err)
	}
	return &task, nil
}

// ListRecurring returns the user's active templates in creation order.
func (r *TaskRepository) ListRecurring(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ? AND archived = ?", userID, true, false).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListBacklog(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ? AND archived = ?", userID, false, false).
		Order(backlogOrder).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list backlog: %w", err)
	}
	return tasks, nil
}

// ListDueBy returns backlog entries with a due date on or before until.
func (r *TaskRepository) ListDueBy(ctx context.Context, userID string, until model.Date) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ? AND archived = ?", userID, false, false).
		Where("due_date IS NOT NULL AND due_date <= ?", until).
		Order(backlogOrder).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return tasks, nil
}

// ListDueOn returns backlog entries due exactly on one of dates.
func (r *TaskRepository) ListDueOn(ctx context.Context, userID string, dates []model.Date) ([]model.Task, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ? AND archived = ?", userID, false, false).
		Where("due_date IN ?", dates).
		Order(backlogOrder).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks due on: %w", err)
	}
	return tasks, nil
}

// SetArchived soft-deletes or restores a task.
func (r *TaskRepository) SetArchived(ctx context.Context, task *model.Task, archived bool) error {
	if err := r.db.WithContext(ctx).Model(task).Update("archived", archived).Error; err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	task.Archived = archived
	return nil
}
