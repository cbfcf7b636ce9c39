package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken string         `mapstructure:"telegram_token"`
	DatabaseURL   string         `mapstructure:"database_url"`
	Timezone      string         `mapstructure:"timezone"`
	Log           LogConfig      `mapstructure:"log"`
	Planner       PlannerConfig  `mapstructure:"planner"`
	Schedule      ScheduleConfig `mapstructure:"schedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PlannerConfig tunes the daily views and catch-up replay.
type PlannerConfig struct {
	TopN           int `mapstructure:"top_n"`
	DueSoonDays    int `mapstructure:"due_soon_days"`
	MaxCatchUpDays int `mapstructure:"max_catch_up_days"`
	// DueNudgeDays lists how many days ahead of a due date the morning nudge mentions it.
	DueNudgeDays []int `mapstructure:"due_nudge_days"`
}

type ScheduleConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
}

// Load reads configuration from an optional .env file and SLATE_* environment
// variables with sane defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names are accepted too.
	_ = v.BindEnv("telegram_token", "SLATE_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("database_url", "SLATE_DATABASE_URL", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram_token", "")
	v.SetDefault("database_url", "slate.db")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("planner.top_n", 3)
	v.SetDefault("planner.due_soon_days", 14)
	v.SetDefault("planner.max_catch_up_days", 31)
	v.SetDefault("planner.due_nudge_days", []int{1, 3})
	v.SetDefault("schedule.sweep_interval", time.Hour)
	v.SetDefault("schedule.job_timeout", 30*time.Second)
}

// Validate checks values that every command depends on. The Telegram token is
// checked by RequireTelegram since only the bot needs it.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("SLATE_DATABASE_URL is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid SLATE_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.Planner.TopN <= 0 {
		return fmt.Errorf("SLATE_PLANNER_TOP_N must be positive")
	}
	if c.Planner.DueSoonDays < 0 {
		return fmt.Errorf("SLATE_PLANNER_DUE_SOON_DAYS must not be negative")
	}
	if c.Planner.MaxCatchUpDays <= 0 {
		return fmt.Errorf("SLATE_PLANNER_MAX_CATCH_UP_DAYS must be positive")
	}
	if c.Schedule.SweepInterval <= 0 {
		return fmt.Errorf("SLATE_SCHEDULE_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}
