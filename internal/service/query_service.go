package service

import (
	"context"

	"slate/internal/model"
	"slate/internal/repository"
)

// Progress is the completion ring: how many of the day's items are done.
type Progress struct {
	Total     int
	Completed int
}

func (p Progress) Remaining() int { return p.Total - p.Completed }

// QueryService serves the read-only views. None of its methods write.
type QueryService struct {
	store       *repository.Store
	topN        int
	dueSoonDays int
}

func NewQueryService(store *repository.Store, topN, dueSoonDays int) *QueryService {
	if topN <= 0 {
		topN = 3
	}
	if dueSoonDays < 0 {
		dueSoonDays = 14
	}
	return &QueryService{store: store, topN: topN, dueSoonDays: dueSoonDays}
}

func (s *QueryService) TopN() int { return s.topN }

// TodayTop returns up to n pending items of date by priority then sort_order.
// n <= 0 uses the configured default.
func (s *QueryService) TodayTop(ctx context.Context, user *model.User, date model.Date, n int) ([]model.DailyTask, error) {
	if n <= 0 {
		n = s.topN
	}
	return s.store.DailyTasks.ListPending(ctx, user.ID, date, n, 0)
}

// TodayRest returns the pending items that did not make the top n.
func (s *QueryService) TodayRest(ctx context.Context, user *model.User, date model.Date, n int) ([]model.DailyTask, error) {
	if n <= 0 {
		n = s.topN
	}
	return s.store.DailyTasks.ListPending(ctx, user.ID, date, 0, n)
}

func (s *QueryService) CompletedToday(ctx context.Context, user *model.User, date model.Date) ([]model.DailyTask, error) {
	return s.store.DailyTasks.ListCompleted(ctx, user.ID, date)
}

func (s *QueryService) Progress(ctx context.Context, user *model.User, date model.Date) (Progress, error) {
	total, completed, err := s.store.DailyTasks.Count(ctx, user.ID, date)
	if err != nil {
		return Progress{}, err
	}
	return Progress{Total: int(total), Completed: int(completed)}, nil
}

// Day returns every item of date in manual order.
func (s *QueryService) Day(ctx context.Context, user *model.User, date model.Date) ([]model.DailyTask, error) {
	return s.store.DailyTasks.ListByDate(ctx, user.ID, date)
}

// Unfinished lists the items an end-of-day review still has to decide on.
func (s *QueryService) Unfinished(ctx context.Context, user *model.User, date model.Date) ([]model.DailyTask, error) {
	return s.store.DailyTasks.ListUnreviewed(ctx, user.ID, date)
}

// Backlog lists non-recurring, non-archived tasks by due date, undated last.
func (s *QueryService) Backlog(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.store.Tasks.ListBacklog(ctx, user.ID)
}

// DueSoon is Backlog restricted to tasks due within the configured horizon of
// today. Overdue tasks are included.
func (s *QueryService) DueSoon(ctx context.Context, user *model.User, today model.Date) ([]model.Task, error) {
	return s.DueWithin(ctx, user, today, s.dueSoonDays)
}

func (s *QueryService) DueWithin(ctx context.Context, user *model.User, today model.Date, days int) ([]model.Task, error) {
	return s.store.Tasks.ListDueBy(ctx, user.ID, today.AddDays(days))
}
