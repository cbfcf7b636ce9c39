package model

// Priority orders tasks within a day: high before medium before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank is 0 for high, 1 for medium and 2 for low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Source records where a DailyTask came from.
type Source string

const (
	SourceRecurring Source = "recurring"
	SourceBacklog   Source = "backlog"
	SourceCustom    Source = "custom"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
)

// ReviewOutcome is the end-of-day annotation on an unfinished DailyTask.
type ReviewOutcome string

const (
	OutcomeMoved      ReviewOutcome = "moved"
	OutcomeBacklogged ReviewOutcome = "backlogged"
	OutcomeDropped    ReviewOutcome = "dropped"
)

func ParseOutcome(s string) (ReviewOutcome, error) {
	switch o := ReviewOutcome(s); o {
	case OutcomeMoved, OutcomeBacklogged, OutcomeDropped:
		return o, nil
	}
	return "", ErrInvalidOutcome
}
