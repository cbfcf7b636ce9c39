package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate/internal/model"
)

func TestGenerateDailyTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	rule := daily()
	rule.Time = strPtr("07:00")
	tpl := env.template(t, user, "Morning meditation", rule)

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	require.Len(t, items, 1)

	dt := items[0]
	assert.Equal(t, model.SourceRecurring, dt.Source)
	assert.Equal(t, "Morning meditation", dt.Title)
	assert.Equal(t, model.StatusPending, dt.Status)
	require.NotNil(t, dt.Time)
	assert.Equal(t, "07:00", *dt.Time)
	require.NotNil(t, dt.TaskID)
	assert.Equal(t, tpl.ID, *dt.TaskID)
	assert.Nil(t, dt.ReviewOutcome)
}

func TestGenerateWeeklyTemplateOnlyOnListedDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	env.template(t, user, "Take out trash", weekly(4))

	thursday, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-05"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Take out trash"}, titles(thursday))

	for _, date := range []string{"2026-02-06", "2026-02-07", "2026-02-08", "2026-02-09", "2026-02-10", "2026-02-11"} {
		items, err := env.generator.Generate(ctx, user, model.MustDate(date))
		require.NoError(t, err)
		assert.Empty(t, items, date)
	}

	next, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-12"))
	require.NoError(t, err)
	assert.Len(t, next, 1)
}

func TestGenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	env.template(t, user, "Stretch", daily())
	env.template(t, user, "Inbox zero", daily())

	date := model.MustDate("2026-02-07")
	first, err := env.generator.Generate(ctx, user, date)
	require.NoError(t, err)
	second, err := env.generator.Generate(ctx, user, date)
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Len(t, env.day(t, user, "2026-02-07"), 2)
	assert.Len(t, env.synced.all(), 2, "only the first call creates rows")
}

func TestGenerateRejectsInvalidDate(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "UTC")

	_, err := env.generator.Generate(context.Background(), user, model.Date("2026-13-01"))
	assert.ErrorIs(t, err, model.ErrInvalidDate)
}

func TestGenerateSkipsDatesBeforeCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	env.template(t, user, "Journal", daily())

	items, err := env.generator.Generate(ctx, user, model.MustDate("2025-12-31"))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = env.generator.Generate(ctx, user, model.MustDate("2026-01-01"))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGenerateIgnoresArchivedTemplates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	tpl := env.template(t, user, "Old habit", daily())
	require.NoError(t, env.store.Tasks.SetArchived(ctx, tpl, true))

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGenerateSnapshotsTemplateFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	tpl := env.template(t, user, "Read", daily())

	_, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)

	tpl.Title = "Read 20 pages"
	tpl.Priority = model.PriorityHigh
	require.NoError(t, env.store.Tasks.Save(ctx, tpl))

	_, err = env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)

	old := env.day(t, user, "2026-02-06")
	require.Len(t, old, 1)
	assert.Equal(t, "Read", old[0].Title)
	assert.Equal(t, model.PriorityMedium, old[0].Priority)

	fresh := env.day(t, user, "2026-02-07")
	require.Len(t, fresh, 1)
	assert.Equal(t, "Read 20 pages", fresh[0].Title)
	assert.Equal(t, model.PriorityHigh, fresh[0].Priority)
}

func TestGenerateAppendsAfterExistingItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	env.template(t, user, "Walk", daily())

	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-07", Title: "Call mom"})
	require.NoError(t, err)
	assert.Equal(t, 0, custom.SortOrder)

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"Call mom", "Walk"}, titles(items))
	assert.Equal(t, 1, items[1].SortOrder)
}

func TestGenerateRollsOverMovedRecurringItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	// Fridays only, so 2026-02-07 has no template instance of its own.
	tpl := env.template(t, user, "Water plants", weekly(5))

	friday, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	require.Len(t, friday, 1)

	closed, err := env.review.CloseDay(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	require.Len(t, closed.Moved, 1)

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	require.Len(t, items, 1)

	rolled := items[0]
	require.NotNil(t, rolled.TaskID)
	assert.Equal(t, tpl.ID, *rolled.TaskID)
	assert.Equal(t, model.SourceRecurring, rolled.Source)
	assert.Equal(t, model.StatusPending, rolled.Status)
	require.NotNil(t, rolled.RolledFromID)
	assert.Equal(t, friday[0].ID, *rolled.RolledFromID)
}

func TestGenerateDoesNotDuplicateRolledDailyTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	tpl := env.template(t, user, "Floss", daily())

	_, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	_, err = env.review.CloseDay(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	assert.Len(t, forTask(items, tpl.ID), 1)
}

func TestGenerateRollsOverMovedCustomItemOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Buy stamps", Time: "10:30"})
	require.NoError(t, err)
	_, err = env.review.Review(ctx, user, custom.ID, model.OutcomeMoved)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Buy stamps", items[0].Title)
		assert.Equal(t, model.SourceCustom, items[0].Source)
		assert.Nil(t, items[0].TaskID)
		require.NotNil(t, items[0].Time)
		assert.Equal(t, "10:30", *items[0].Time)
	}
}

func TestGenerateDoesNotRollOverOtherOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	task := env.backlogTask(t, user, "File taxes", model.PriorityHigh, "")
	pulled, err := env.planning.PullFromBacklog(ctx, user, PullInput{TaskID: task.ID, Date: "2026-02-06"})
	require.NoError(t, err)
	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Nap"})
	require.NoError(t, err)

	_, err = env.review.Review(ctx, user, pulled.ID, model.OutcomeBacklogged)
	require.NoError(t, err)
	_, err = env.review.Review(ctx, user, custom.ID, model.OutcomeDropped)
	require.NoError(t, err)

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCatchUpReplaysEachMissedDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	env.template(t, user, "Meditate", daily())
	task := env.backlogTask(t, user, "Renew passport", model.PriorityHigh, "2026-03-01")

	_, err := env.generator.CatchUp(ctx, user, model.MustDate("2026-02-03"))
	require.NoError(t, err)
	first, err := env.planning.PullFromBacklog(ctx, user, PullInput{TaskID: task.ID, Date: "2026-02-03"})
	require.NoError(t, err)

	today, err := env.generator.CatchUp(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Meditate", "Renew passport"}, titles(today))

	prevID := first.ID
	for _, date := range []string{"2026-02-04", "2026-02-05", "2026-02-06"} {
		items := env.day(t, user, date)
		assert.Len(t, items, 2, date)
		chain := forTask(items, task.ID)
		require.Len(t, chain, 1, date)
		require.NotNil(t, chain[0].RolledFromID, date)
		assert.Equal(t, prevID, *chain[0].RolledFromID, date)
		assert.Equal(t, model.SourceBacklog, chain[0].Source)
		prevID = chain[0].ID
	}

	stored, err := env.store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastGeneratedDate)
	assert.Equal(t, model.MustDate("2026-02-06"), *stored.LastGeneratedDate)
	require.NotNil(t, stored.LastClosedDate)
	assert.Equal(t, model.MustDate("2026-02-05"), *stored.LastClosedDate)

	// Running it again for the same day is a no-op.
	again, err := env.generator.CatchUp(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestGenerateAheadLeavesCatchUpMarker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	tpl := env.template(t, user, "Meditate", daily())

	_, err := env.generator.CatchUp(ctx, user, model.MustDate("2026-02-05"))
	require.NoError(t, err)

	ahead, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-09"))
	require.NoError(t, err)
	assert.Len(t, ahead, 1)
	require.NotNil(t, user.LastGeneratedDate)
	assert.Equal(t, model.MustDate("2026-02-05"), *user.LastGeneratedDate)

	stored, err := env.store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastGeneratedDate)
	assert.Equal(t, model.MustDate("2026-02-05"), *stored.LastGeneratedDate)

	_, err = env.generator.CatchUp(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)
	for _, date := range []string{"2026-02-06", "2026-02-07"} {
		assert.Len(t, forTask(env.day(t, user, date), tpl.ID), 1, date)
	}
	for _, date := range []string{"2026-02-05", "2026-02-06"} {
		items := env.day(t, user, date)
		require.Len(t, items, 1, date)
		require.NotNil(t, items[0].ReviewOutcome, date)
	}
	for _, date := range []string{"2026-02-07", "2026-02-09"} {
		items := env.day(t, user, date)
		require.Len(t, items, 1, date)
		assert.Nil(t, items[0].ReviewOutcome, date)
	}
}

func TestCatchUpTruncatesLongGaps(t *testing.T) {
	env := newTestEnvWithWindow(t, 2)
	ctx := context.Background()
	user := env.user(t, "UTC")
	env.template(t, user, "Meditate", daily())
	_, err := env.store.Users.MarkGenerated(ctx, user, model.MustDate("2026-01-01"))
	require.NoError(t, err)
	user, err = env.store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)

	_, err = env.generator.CatchUp(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)

	assert.Empty(t, env.day(t, user, "2026-02-04"))
	assert.Len(t, env.day(t, user, "2026-02-05"), 1)
	assert.Len(t, env.day(t, user, "2026-02-06"), 1)
	assert.Len(t, env.day(t, user, "2026-02-07"), 1)
}

func TestGenerateUsesUserTimezoneForCreationDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "America/Los_Angeles")

	// 03:00 UTC on Jan 1 is still Dec 31 in Los Angeles.
	rule := daily()
	tpl := &model.Task{
		UserID:      user.ID,
		Title:       "Plan week",
		Priority:    model.PriorityLow,
		IsRecurring: true,
		Recurrence:  &rule,
		CreatedAt:   time.Date(2026, time.January, 1, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.store.Tasks.Create(ctx, tpl))

	items, err := env.generator.Generate(ctx, user, model.MustDate("2025-12-31"))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = env.generator.Generate(ctx, user, model.MustDate("2025-12-30"))
	require.NoError(t, err)
	assert.Empty(t, items)
}
