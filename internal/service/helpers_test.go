package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slate/internal/logger"
	"slate/internal/model"
	"slate/internal/repository"
)

var createdJan1 = time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *repository.Store
	locks     *UserLocks
	synced    *recordingSync
	tasks     *TaskService
	review    *ReviewService
	generator *Generator
	planning  *PlanningService
	query     *QueryService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithWindow(t, 31)
}

func newTestEnvWithWindow(t *testing.T, maxCatchUpDays int) *testEnv {
	t.Helper()
	db, err := repository.NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := logger.Nop()
	store := repository.NewStore(db)
	locks := NewUserLocks()
	synced := &recordingSync{}
	review := NewReviewService(store, locks, synced, log)
	return &testEnv{
		store:     store,
		locks:     locks,
		synced:    synced,
		tasks:     NewTaskService(store, log),
		review:    review,
		generator: NewGenerator(store, locks, review, synced, maxCatchUpDays, log),
		planning:  NewPlanningService(store, locks, synced, log),
		query:     NewQueryService(store, 3, 14),
	}
}

func (e *testEnv) user(t *testing.T, tz string) *model.User {
	t.Helper()
	user := &model.User{Email: "me@example.com", Timezone: tz}
	require.NoError(t, e.store.Users.Create(context.Background(), user))
	return user
}

// template stores a recurring task with a fixed creation time so rule
// evaluation does not depend on the wall clock.
func (e *testEnv) template(t *testing.T, user *model.User, title string, rule model.RecurrenceRule) *model.Task {
	t.Helper()
	task := &model.Task{
		UserID:      user.ID,
		Title:       title,
		Priority:    model.PriorityMedium,
		IsRecurring: true,
		Recurrence:  &rule,
		CreatedAt:   createdJan1,
	}
	require.NoError(t, task.Validate())
	require.NoError(t, e.store.Tasks.Create(context.Background(), task))
	return task
}

func (e *testEnv) backlogTask(t *testing.T, user *model.User, title string, priority model.Priority, due string) *model.Task {
	t.Helper()
	task := &model.Task{UserID: user.ID, Title: title, Priority: priority, CreatedAt: createdJan1}
	if due != "" {
		d := model.MustDate(due)
		task.DueDate = &d
	}
	require.NoError(t, e.store.Tasks.Create(context.Background(), task))
	return task
}

func (e *testEnv) day(t *testing.T, user *model.User, date string) []model.DailyTask {
	t.Helper()
	items, err := e.store.DailyTasks.ListByDate(context.Background(), user.ID, model.MustDate(date))
	require.NoError(t, err)
	return items
}

func daily() model.RecurrenceRule {
	return model.RecurrenceRule{Frequency: model.FrequencyDaily}
}

func weekly(days ...int) model.RecurrenceRule {
	return model.RecurrenceRule{Frequency: model.FrequencyWeekly, DaysOfWeek: days}
}

func strPtr(s string) *string { return &s }

func titles(items []model.DailyTask) []string {
	out := make([]string, 0, len(items))
	for _, dt := range items {
		out = append(out, dt.Title)
	}
	return out
}

func forTask(items []model.DailyTask, taskID string) []model.DailyTask {
	var out []model.DailyTask
	for _, dt := range items {
		if dt.TaskID != nil && *dt.TaskID == taskID {
			out = append(out, dt)
		}
	}
	return out
}

type recordingSync struct {
	mu    sync.Mutex
	calls [][]model.DailyTask
}

func (r *recordingSync) Sync(_ context.Context, _ *model.User, items ...model.DailyTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]model.DailyTask(nil), items...))
}

func (r *recordingSync) all() []model.DailyTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DailyTask
	for _, call := range r.calls {
		out = append(out, call...)
	}
	return out
}

type fakeEntry struct {
	at   time.Time
	job  func()
	tz   string
	time string
}

// fakeScheduler records keyed jobs instead of running them.
type fakeScheduler struct {
	mu        sync.Mutex
	entries   map[string]fakeEntry
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{entries: make(map[string]fakeEntry)}
}

func (f *fakeScheduler) ScheduleOnce(key string, at time.Time, job func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = fakeEntry{at: at, job: job}
	return nil
}

func (f *fakeScheduler) ScheduleDailyIn(key, tz, timeStr string, job func()) error {
	if _, err := buildDailySpec(timeStr, tz); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = fakeEntry{job: job, tz: tz, time: timeStr}
	return nil
}

func (f *fakeScheduler) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	f.cancelled = append(f.cancelled, key)
}

func (f *fakeScheduler) entry(key string) (fakeEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	return e, ok
}

type sentMessage struct {
	userID string
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) Notify(_ context.Context, user *model.User, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{userID: user.ID, text: text})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}
