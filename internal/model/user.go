package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User owns tasks; its Timezone decides every calendar date in its data.
type User struct {
	ID                      string `gorm:"primaryKey;size:36"`
	TelegramID              *int64 `gorm:"uniqueIndex"`
	Email                   string
	Timezone                string `gorm:"not null;default:UTC"`
	MorningNotificationTime string `gorm:"not null;default:'07:00'"`
	EveningNotificationTime string `gorm:"not null;default:'21:30'"`
	LastGeneratedDate       *Date
	LastClosedDate          *Date
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Location loads the user's timezone, falling back to UTC when unset.
func (u *User) Location() (*time.Location, error) {
	if u.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, u.Timezone)
	}
	return loc, nil
}

// Today is the user's local calendar date at now.
func (u *User) Today(now time.Time) (Date, error) {
	loc, err := u.Location()
	if err != nil {
		return "", err
	}
	return DateOf(now, loc), nil
}

// Validate checks timezone and notification times.
func (u *User) Validate() error {
	if _, err := u.Location(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	for _, clock := range []string{u.MorningNotificationTime, u.EveningNotificationTime} {
		if clock == "" {
			continue
		}
		if _, _, err := ParseClock(clock); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}
