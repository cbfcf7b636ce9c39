package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slate/internal/bot"
	"slate/internal/config"
	"slate/internal/logger"
	"slate/internal/model"
	"slate/internal/service"
)

type rootOptions struct {
	cfg config.Config
	log *zap.SugaredLogger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "slate",
		Short:         "Daily planner with a Telegram front end",
		Long:          "Slate keeps a backlog and recurring habits, builds a plan for each day and walks you through an evening review.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			opts.cfg = cfg
			opts.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newGenerateCommand(opts))
	root.AddCommand(newCloseDayCommand(opts))
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the daily schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg, opts.log)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Services{
		Users:     a.store.Users,
		Tasks:     a.tasks,
		Planning:  a.planning,
		Review:    a.review,
		Query:     a.query,
		Generator: a.generator,
		Routine:   a.routine,
	}, &cfg, log)
	if err != nil {
		return err
	}
	a.reminders.SetNotifier(telegramBot)

	if err := a.routine.RegisterAll(ctx); err != nil {
		return fmt.Errorf("register routines: %w", err)
	}
	if _, err := a.sched.ScheduleInterval(cfg.Schedule.SweepInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), cfg.Schedule.JobTimeout)
		defer cancel()
		if err := a.routine.Sweep(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	a.sched.Start()
	defer a.sched.Stop()

	log.Infow("slate started", "timezone", cfg.Timezone, "sweep_interval", cfg.Schedule.SweepInterval)
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

func newGenerateCommand(opts *rootOptions) *cobra.Command {
	var (
		userRef string
		date    string
		catchUp bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a user's plan for a day and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.resolveUser(ctx, userRef)
			if err != nil {
				return err
			}
			now := time.Now()
			day, err := resolveDate(user, date, now)
			if err != nil {
				return err
			}
			items, err := a.planDay(ctx, user, day, now, catchUp)
			if err != nil {
				return err
			}
			printDay(cmd.OutOrStdout(), day, items)
			return nil
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "user ID or Telegram chat ID (required)")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD, defaults to the user's today")
	cmd.Flags().BoolVar(&catchUp, "catch-up", true, "close and replay missed days up to the date, never past today")
	return cmd
}

func newCloseDayCommand(opts *rootOptions) *cobra.Command {
	var (
		userRef string
		date    string
	)
	cmd := &cobra.Command{
		Use:   "close-day",
		Short: "Resolve every unreviewed item of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.resolveUser(ctx, userRef)
			if err != nil {
				return err
			}
			now := time.Now()
			day, err := resolveDate(user, date, now)
			if err != nil {
				return err
			}
			closed, err := a.closeDay(ctx, user, day, now)
			if err != nil {
				return err
			}
			printClosed(cmd.OutOrStdout(), closed)
			return nil
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "user ID or Telegram chat ID (required)")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD, defaults to the user's today")
	return cmd
}

func printDay(w io.Writer, day model.Date, items []model.DailyTask) {
	fmt.Fprintf(w, "%s (%d items)\n", day, len(items))
	for i, dt := range items {
		clock := "--:--"
		if dt.Time != nil {
			clock = *dt.Time
		}
		fmt.Fprintf(w, "%2d. [%s] %s %-6s %s (%s)\n", i+1, statusMark(dt.Status), clock, dt.Priority, dt.Title, dt.Source)
	}
}

func printClosed(w io.Writer, closed service.ClosedDay) {
	fmt.Fprintf(w, "%s closed: %d moved, %d dropped\n", closed.Date, len(closed.Moved), len(closed.Dropped))
	for _, dt := range closed.Moved {
		fmt.Fprintf(w, "  moved    %s\n", dt.Title)
	}
	for _, dt := range closed.Dropped {
		fmt.Fprintf(w, "  dropped  %s\n", dt.Title)
	}
}

func statusMark(s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return "x"
	case model.StatusSkipped:
		return "-"
	default:
		return " "
	}
}
