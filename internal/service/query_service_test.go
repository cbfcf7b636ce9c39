package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate/internal/model"
)

func TestTodayViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	date := model.MustDate("2026-02-07")

	ids := map[string]string{}
	for _, in := range []CustomInput{
		{Title: "low one", Priority: "low"},
		{Title: "high one", Priority: "high"},
		{Title: "medium one", Priority: "medium"},
		{Title: "high two", Priority: "high"},
		{Title: "medium two", Priority: "medium"},
		{Title: "finished", Priority: "high"},
	} {
		in.Date = "2026-02-07"
		dt, err := env.planning.AddCustom(ctx, user, in)
		require.NoError(t, err)
		ids[in.Title] = dt.ID
	}
	_, err := env.planning.Complete(ctx, user, ids["finished"], time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	top, err := env.query.TodayTop(ctx, user, date, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"high one", "high two", "medium one"}, titles(top))

	rest, err := env.query.TodayRest(ctx, user, date, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"medium two", "low one"}, titles(rest))

	wide, err := env.query.TodayTop(ctx, user, date, 10)
	require.NoError(t, err)
	assert.Len(t, wide, 5)

	completed, err := env.query.CompletedToday(ctx, user, date)
	require.NoError(t, err)
	assert.Equal(t, []string{"finished"}, titles(completed))

	progress, err := env.query.Progress(ctx, user, date)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 6, Completed: 1}, progress)
	assert.Equal(t, 5, progress.Remaining())

	empty, err := env.query.Progress(ctx, user, date.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, Progress{}, empty)
}

func TestTodayTopFollowsManualOrderWithinPriority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")
	date := model.MustDate("2026-02-07")

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		dt, err := env.planning.AddCustom(ctx, user, CustomInput{Date: "2026-02-07", Title: title})
		require.NoError(t, err)
		ids = append(ids, dt.ID)
	}
	_, err := env.planning.Reorder(ctx, user, date, []string{ids[2], ids[1], ids[0]})
	require.NoError(t, err)

	top, err := env.query.TodayTop(ctx, user, date, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, titles(top))
}

func TestDueSoon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "UTC")

	env.backlogTask(t, user, "overdue", model.PriorityLow, "2026-02-01")
	env.backlogTask(t, user, "today", model.PriorityLow, "2026-02-07")
	env.backlogTask(t, user, "edge", model.PriorityLow, "2026-02-21")
	env.backlogTask(t, user, "later", model.PriorityLow, "2026-02-22")
	env.backlogTask(t, user, "undated", model.PriorityLow, "")
	archived := env.backlogTask(t, user, "archived", model.PriorityLow, "2026-02-08")
	require.NoError(t, env.store.Tasks.SetArchived(ctx, archived, true))
	env.template(t, user, "template", daily())

	due, err := env.query.DueSoon(ctx, user, model.MustDate("2026-02-07"))
	require.NoError(t, err)

	var got []string
	for _, task := range due {
		got = append(got, task.Title)
	}
	assert.Equal(t, []string{"overdue", "today", "edge"}, got)

	backlog, err := env.query.Backlog(ctx, user)
	require.NoError(t, err)
	require.Len(t, backlog, 5)
	assert.Equal(t, "undated", backlog[4].Title)
}
