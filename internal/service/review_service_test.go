package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate/internal/model"
)

func TestReviewBackloggedOnCustomItemFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Pick up dry cleaning"})
	require.NoError(t, err)

	_, err = env.review.Review(ctx, user, custom.ID, model.OutcomeBacklogged)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	stored, err := env.store.DailyTasks.FindByID(ctx, user.ID, custom.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReviewOutcome)
}

func TestReviewNeverOverwritesOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Clean garage"})
	require.NoError(t, err)

	reviewed, err := env.review.Review(ctx, user, custom.ID, model.OutcomeDropped)
	require.NoError(t, err)
	require.NotNil(t, reviewed.ReviewOutcome)
	assert.Equal(t, model.OutcomeDropped, *reviewed.ReviewOutcome)

	_, err = env.review.Review(ctx, user, custom.ID, model.OutcomeMoved)
	require.ErrorIs(t, err, model.ErrAlreadyReviewed)

	stored, err := env.store.DailyTasks.FindByID(ctx, user.ID, custom.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDropped, *stored.ReviewOutcome)
}

func TestReviewRejectsFinishedItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	done, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Done"})
	require.NoError(t, err)
	_, err = env.planning.Complete(ctx, user, done.ID, time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	skipped, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Skipped"})
	require.NoError(t, err)
	_, err = env.planning.Skip(ctx, user, skipped.ID)
	require.NoError(t, err)

	for _, id := range []string{done.ID, skipped.ID} {
		_, err := env.review.Review(ctx, user, id, model.OutcomeMoved)
		assert.ErrorIs(t, err, model.ErrNotReviewable)
	}
}

func TestReviewRejectsUnknownOutcomeAndItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Anything"})
	require.NoError(t, err)

	_, err = env.review.Review(ctx, user, custom.ID, model.ReviewOutcome("later"))
	assert.ErrorIs(t, err, model.ErrInvalidOutcome)

	_, err = env.review.Review(ctx, user, "missing", model.OutcomeMoved)
	assert.ErrorIs(t, err, model.ErrNotFound)

	other := env.user(t, "UTC")
	_, err = env.review.Review(ctx, other, custom.ID, model.OutcomeMoved)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReviewBackloggedKeepsTaskInBacklog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	task := env.backlogTask(t, user, "Fix bike", model.PriorityLow, "")

	pulled, err := env.planning.PullFromBacklog(ctx, user, PullInput{TaskID: task.ID, Date: "2026-02-06"})
	require.NoError(t, err)

	_, err = env.review.Review(ctx, user, pulled.ID, model.OutcomeBacklogged)
	require.NoError(t, err)

	backlog, err := env.query.Backlog(ctx, user)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, task.ID, backlog[0].ID)

	// It can be pulled again on a later day.
	_, err = env.planning.PullFromBacklog(ctx, user, PullInput{TaskID: task.ID, Date: "2026-02-09"})
	assert.NoError(t, err)
}

func TestReviewBackloggedRecurringItemLeavesTemplateAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	tpl := env.template(t, user, "Gym", weekly(1, 3, 5))

	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = env.review.Review(ctx, user, items[0].ID, model.OutcomeBacklogged)
	require.NoError(t, err)

	stored, err := env.store.Tasks.FindByID(ctx, user.ID, tpl.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRecurring)
	assert.False(t, stored.Archived)

	backlog, err := env.query.Backlog(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestCloseDayAppliesDefaultPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	date := model.MustDate("2026-02-06")

	live := env.template(t, user, "Practice piano", daily())
	retired := env.template(t, user, "Old routine", daily())
	_, err := env.generator.Generate(ctx, user, date)
	require.NoError(t, err)
	require.NoError(t, env.store.Tasks.SetArchived(ctx, retired, true))

	custom, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Buy milk"})
	require.NoError(t, err)
	done, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Send invoice"})
	require.NoError(t, err)
	_, err = env.planning.Complete(ctx, user, done.ID, time.Date(2026, 2, 6, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	kept, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Call bank"})
	require.NoError(t, err)
	_, err = env.review.Review(ctx, user, kept.ID, model.OutcomeMoved)
	require.NoError(t, err)

	closed, err := env.review.CloseDay(ctx, user, date)
	require.NoError(t, err)

	require.Len(t, closed.Moved, 1)
	assert.Equal(t, live.ID, *closed.Moved[0].TaskID)
	assert.ElementsMatch(t, []string{"Old routine", "Buy milk"}, titles(closed.Dropped))
	droppedIDs := make([]string, 0, len(closed.Dropped))
	for _, dt := range closed.Dropped {
		droppedIDs = append(droppedIDs, dt.ID)
	}
	assert.Contains(t, droppedIDs, custom.ID)

	outcomes := map[string]*model.ReviewOutcome{}
	for _, dt := range env.day(t, user, "2026-02-06") {
		outcomes[dt.Title] = dt.ReviewOutcome
	}
	assert.Equal(t, model.OutcomeMoved, *outcomes["Practice piano"])
	assert.Equal(t, model.OutcomeDropped, *outcomes["Old routine"])
	assert.Equal(t, model.OutcomeDropped, *outcomes["Buy milk"])
	assert.Equal(t, model.OutcomeMoved, *outcomes["Call bank"])
	assert.Nil(t, outcomes["Send invoice"], "completed items are never reviewed")

	again, err := env.review.CloseDay(ctx, user, date)
	require.NoError(t, err)
	assert.Empty(t, again.Moved)
	assert.Empty(t, again.Dropped)

	stored, err := env.store.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastClosedDate)
	assert.Equal(t, date, *stored.LastClosedDate)
}

func TestCloseDayThenGenerateNextDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	task := env.backlogTask(t, user, "Draft report", model.PriorityHigh, "2026-02-10")

	_, err := env.planning.PullFromBacklog(ctx, user, PullInput{TaskID: task.ID, Date: "2026-02-06", Time: "14:00"})
	require.NoError(t, err)
	_, err = env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-06", Title: "Coffee with Sam"})
	require.NoError(t, err)

	_, err = env.review.CloseDay(ctx, user, model.MustDate("2026-02-06"))
	require.NoError(t, err)
	items, err := env.generator.Generate(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Draft report", items[0].Title)
	assert.Equal(t, model.SourceBacklog, items[0].Source)
	require.NotNil(t, items[0].Time)
	assert.Equal(t, "14:00", *items[0].Time)
}
