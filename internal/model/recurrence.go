package model

import (
	"fmt"
	"time"
)

// RecurrenceRule describes when a recurring Task produces a DailyTask.
type RecurrenceRule struct {
	Frequency         Frequency `json:"frequency"`
	DaysOfWeek        []int     `json:"days_of_week"` // 0=Sun..6=Sat, nil for daily rules
	Time              *string   `json:"time"`
	ReminderOffsetMin int       `json:"reminder_offset_min"`
}

// Validate rejects malformed rules. It runs when a task is written, never
// during evaluation, so OccursOn can assume a well-formed rule.
func (r RecurrenceRule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily:
		if r.DaysOfWeek != nil {
			return fmt.Errorf("%w: daily rule must not list days of week", ErrInvalidRecurrence)
		}
	case FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly rule needs at least one day of week", ErrInvalidRecurrence)
		}
		seen := make(map[int]bool, len(r.DaysOfWeek))
		for _, day := range r.DaysOfWeek {
			if day < 0 || day > 6 {
				return fmt.Errorf("%w: day of week %d out of range 0-6", ErrInvalidRecurrence, day)
			}
			if seen[day] {
				return fmt.Errorf("%w: day of week %d listed twice", ErrInvalidRecurrence, day)
			}
			seen[day] = true
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, r.Frequency)
	}
	if r.Time != nil {
		if _, _, err := ParseClock(*r.Time); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRecurrence, err)
		}
	}
	if r.ReminderOffsetMin < 0 {
		return fmt.Errorf("%w: reminder offset must be >= 0", ErrInvalidRecurrence)
	}
	return nil
}

// OccursOn reports whether rule produces an instance on date. createdOn is
// the template's creation day in the owner's timezone.
func OccursOn(rule RecurrenceRule, createdOn, date Date) bool {
	switch rule.Frequency {
	case FrequencyDaily:
		return !date.Before(createdOn)
	case FrequencyWeekly:
		weekday := int(date.Weekday())
		for _, day := range rule.DaysOfWeek {
			if day == weekday {
				return true
			}
		}
	}
	return false
}

// Weekdays renders days of week as short names, e.g. "Mon, Thu".
func (r RecurrenceRule) Weekdays() string {
	out := ""
	for i, day := range r.DaysOfWeek {
		if i > 0 {
			out += ", "
		}
		out += time.Weekday(day).String()[:3]
	}
	return out
}
