package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task is either a backlog entry or a recurring template.
type Task struct {
	ID          string          `gorm:"primaryKey;size:36"`
	UserID      string          `gorm:"index;size:36;not null"`
	Title       string          `gorm:"not null"`
	Priority    Priority        `gorm:"not null"`
	DueDate     *Date           `gorm:"index"`
	IsRecurring bool            `gorm:"default:false"`
	Recurrence  *RecurrenceRule `gorm:"serializer:json"`
	Archived    bool            `gorm:"default:false;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Validate enforces is_recurring <=> recurrence != nil and rule shape.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, t.Priority)
	}
	if t.IsRecurring != (t.Recurrence != nil) {
		return fmt.Errorf("%w: is_recurring must match presence of recurrence", ErrValidation)
	}
	if t.Recurrence != nil {
		if err := t.Recurrence.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	if t.DueDate != nil && !t.DueDate.Valid() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidDate)
	}
	return nil
}

// OccursOn evaluates the task's rule for date in loc. Backlog entries and
// archived templates never occur.
func (t *Task) OccursOn(date Date, loc *time.Location) bool {
	if !t.IsRecurring || t.Recurrence == nil || t.Archived {
		return false
	}
	return OccursOn(*t.Recurrence, DateOf(t.CreatedAt, loc), date)
}
