package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DailyTask is a concrete item pinned to one date. Title and priority are
// copied from the Task when the row is created and never follow later edits.
type DailyTask struct {
	ID                string         `gorm:"primaryKey;size:36"`
	UserID            string         `gorm:"size:36;not null;index:idx_daily_task_user_date,priority:1"`
	Date              Date           `gorm:"not null;index:idx_daily_task_user_date,priority:2;uniqueIndex:idx_daily_task_task_date,priority:2"`
	Source            Source         `gorm:"not null"`
	TaskID            *string        `gorm:"size:36;uniqueIndex:idx_daily_task_task_date,priority:1"`
	Title             string         `gorm:"not null"`
	Priority          Priority       `gorm:"not null"`
	Time              *string        `gorm:"size:5"`
	ReminderOffsetMin int            `gorm:"default:0"`
	Status            Status         `gorm:"not null;default:pending"`
	CompletedAt       *time.Time     `gorm:"index"`
	ReviewOutcome     *ReviewOutcome `gorm:"size:16"`
	SortOrder         int            `gorm:"default:0"`
	RolledFromID      *string        `gorm:"size:36;uniqueIndex"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (d *DailyTask) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (d *DailyTask) IsCustom() bool { return d.TaskID == nil }

func (d *DailyTask) Reviewed() bool { return d.ReviewOutcome != nil }

// FireTime is when the reminder for d should go off: Time minus the
// reminder offset on Date, in loc. ok is false for untimed items.
func (d *DailyTask) FireTime(loc *time.Location) (fireAt time.Time, ok bool) {
	if d.Time == nil {
		return time.Time{}, false
	}
	at, err := d.Date.At(*d.Time, loc)
	if err != nil {
		return time.Time{}, false
	}
	return at.Add(-time.Duration(d.ReminderOffsetMin) * time.Minute), true
}

// Snapshot builds a pending DailyTask for date from a template or backlog task.
func Snapshot(task *Task, date Date, source Source) DailyTask {
	taskID := task.ID
	dt := DailyTask{
		UserID:   task.UserID,
		Date:     date,
		Source:   source,
		TaskID:   &taskID,
		Title:    task.Title,
		Priority: task.Priority,
		Status:   StatusPending,
	}
	if task.Recurrence != nil {
		if task.Recurrence.Time != nil {
			clock := *task.Recurrence.Time
			dt.Time = &clock
		}
		dt.ReminderOffsetMin = task.Recurrence.ReminderOffsetMin
	}
	return dt
}

// Rollover builds the next-day copy of a moved item, keeping its source.
func Rollover(prev *DailyTask, date Date) DailyTask {
	prevID := prev.ID
	dt := DailyTask{
		UserID:            prev.UserID,
		Date:              date,
		Source:            prev.Source,
		Title:             prev.Title,
		Priority:          prev.Priority,
		ReminderOffsetMin: prev.ReminderOffsetMin,
		Status:            StatusPending,
		RolledFromID:      &prevID,
	}
	if prev.TaskID != nil {
		taskID := *prev.TaskID
		dt.TaskID = &taskID
	}
	if prev.Time != nil {
		clock := *prev.Time
		dt.Time = &clock
	}
	return dt
}
