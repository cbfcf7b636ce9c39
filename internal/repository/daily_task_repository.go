package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"slate/internal/model"
)

const (
	dayOrder      = "sort_order ASC, created_at ASC, id ASC"
	priorityOrder = "CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END ASC, sort_order ASC, id ASC"
)

// DailyTaskRepository stores date-pinned task instances.
type DailyTaskRepository struct {
	db *gorm.DB
}

func NewDailyTaskRepository(db *gorm.DB) *DailyTaskRepository {
	return &DailyTaskRepository{db: db}
}

func (r *DailyTaskRepository) Create(ctx context.Context, dt *model.DailyTask) error {
	if err := r.db.WithContext(ctx).Create(dt).Error; err != nil {
		return fmt.Errorf("create daily task: %w", err)
	}
	return nil
}

func (r *DailyTaskRepository) FindByID(ctx context.Context, userID, id string) (*model.DailyTask, error) {
	var dt model.DailyTask
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&dt).Error; err != nil {
		return nil, notFound("find daily task", err)
	}
	return &dt, nil
}

// ListByDate returns a user's day in manual order.
func (r *DailyTaskRepository) ListByDate(ctx context.Context, userID string, date model.Date) ([]model.DailyTask, error) {
	var items []model.DailyTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Order(dayOrder).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list daily tasks: %w", err)
	}
	return items, nil
}

// ExistsForTask reports whether taskID already has an instance on date.
func (r *DailyTaskRepository) ExistsForTask(ctx context.Context, taskID string, date model.Date) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.DailyTask{}).
		Where("task_id = ? AND date = ?", taskID, date).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check daily task: %w", err)
	}
	return count > 0, nil
}

// ExistsRolledFrom reports whether the moved item prevID was already materialized.
func (r *DailyTaskRepository) ExistsRolledFrom(ctx context.Context, prevID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.DailyTask{}).
		Where("rolled_from_id = ?", prevID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check rollover: %w", err)
	}
	return count > 0, nil
}

// ListByOutcome returns a day's items carrying outcome, in manual order.
func (r *DailyTaskRepository) ListByOutcome(ctx context.Context, userID string, date model.Date, outcome model.ReviewOutcome) ([]model.DailyTask, error) {
	var items []model.DailyTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ? AND review_outcome = ?", userID, date, outcome).
		Order(dayOrder).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list %s daily tasks: %w", outcome, err)
	}
	return items, nil
}

// ListUnreviewed returns pending items of date that have no outcome yet.
func (r *DailyTaskRepository) ListUnreviewed(ctx context.Context, userID string, date model.Date) ([]model.DailyTask, error) {
	var items []model.DailyTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ? AND status = ? AND review_outcome IS NULL", userID, date, model.StatusPending).
		Order(dayOrder).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list unreviewed: %w", err)
	}
	return items, nil
}

// MaxSortOrder returns the highest sort_order on date, or -1 for an empty day.
func (r *DailyTaskRepository) MaxSortOrder(ctx context.Context, userID string, date model.Date) (int, error) {
	var maxOrder sql.NullInt64
	row := r.db.WithContext(ctx).Model(&model.DailyTask{}).
		Where("user_id = ? AND date = ?", userID, date).
		Select("MAX(sort_order)").
		Row()
	if err := row.Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("max sort order: %w", err)
	}
	if !maxOrder.Valid {
		return -1, nil
	}
	return int(maxOrder.Int64), nil
}

// ListPending returns pending items ordered by priority, then sort_order.
// A limit <= 0 means no limit.
func (r *DailyTaskRepository) ListPending(ctx context.Context, userID string, date model.Date, limit, offset int) ([]model.DailyTask, error) {
	var items []model.DailyTask
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ? AND status = ?", userID, date, model.StatusPending).
		Order(priorityOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return items, nil
}

func (r *DailyTaskRepository) ListCompleted(ctx context.Context, userID string, date model.Date) ([]model.DailyTask, error) {
	var items []model.DailyTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ? AND status = ?", userID, date, model.StatusCompleted).
		Order("completed_at ASC, sort_order ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	return items, nil
}

// Count returns the number of items on date and how many are completed.
func (r *DailyTaskRepository) Count(ctx context.Context, userID string, date model.Date) (total, completed int64, err error) {
	if err := r.db.WithContext(ctx).Model(&model.DailyTask{}).Where("user_id = ? AND date = ?", userID, date).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count daily tasks: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&model.DailyTask{}).
		Where("user_id = ? AND date = ? AND status = ?", userID, date, model.StatusCompleted).
		Count(&completed).Error; err != nil {
		return 0, 0, fmt.Errorf("count completed: %w", err)
	}
	return total, completed, nil
}

// ErrOutcomeSet is returned by SetOutcome when another writer got there first.
var ErrOutcomeSet = errors.New("review outcome already set")

// SetOutcome writes the review outcome only if none is recorded yet, so an
// existing outcome is never overwritten.
func (r *DailyTaskRepository) SetOutcome(ctx context.Context, dt *model.DailyTask, outcome model.ReviewOutcome) error {
	res := r.db.WithContext(ctx).Model(&model.DailyTask{}).
		Where("id = ? AND review_outcome IS NULL", dt.ID).
		Update("review_outcome", outcome)
	if res.Error != nil {
		return fmt.Errorf("set review outcome: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOutcomeSet
	}
	dt.ReviewOutcome = &outcome
	return nil
}

// SetStatus writes status and completed_at together to keep them consistent.
func (r *DailyTaskRepository) SetStatus(ctx context.Context, dt *model.DailyTask, status model.Status, completedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": completedAt,
	}
	if err := r.db.WithContext(ctx).Model(dt).Updates(updates).Error; err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	dt.Status = status
	dt.CompletedAt = completedAt
	return nil
}

func (r *DailyTaskRepository) SetSortOrder(ctx context.Context, dt *model.DailyTask, order int) error {
	if err := r.db.WithContext(ctx).Model(dt).Update("sort_order", order).Error; err != nil {
		return fmt.Errorf("set sort order: %w", err)
	}
	dt.SortOrder = order
	return nil
}
