package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"slate/internal/model"
)

// ErrPastFireTime is returned by ScheduleOnce for instants that already passed.
var ErrPastFireTime = errors.New("fire time is in the past")

// SchedulerService wraps cron-based jobs. Keyed entries replace any previous
// entry registered under the same key, so callers can reschedule by id.
type SchedulerService struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	if loc == nil {
		loc = time.UTC
	}
	return &SchedulerService{
		cron:    cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
	}
}

// ScheduleDailyIn registers a daily job at HH:MM in timezone tz under key.
func (s *SchedulerService) ScheduleDailyIn(key, tz, timeStr string, job func()) error {
	spec, err := buildDailySpec(timeStr, tz)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", key, err)
	}
	s.entries[key] = id
	return nil
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// ScheduleOnce runs job once at the given instant under key. Scheduling a key
// again replaces the pending run.
func (s *SchedulerService) ScheduleOnce(key string, at time.Time, job func()) error {
	if !at.After(time.Now()) {
		return ErrPastFireTime
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)

	var id cron.EntryID
	id = s.cron.Schedule(onceSchedule{at: at}, cron.FuncJob(func() {
		s.mu.Lock()
		if s.entries[key] == id {
			s.removeLocked(key)
		}
		s.mu.Unlock()
		job()
	}))
	s.entries[key] = id
	return nil
}

// Cancel drops the entry registered under key, if any.
func (s *SchedulerService) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// Pending reports whether key has a registered entry.
func (s *SchedulerService) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// NextRun returns the next activation of key, or zero when none is scheduled.
func (s *SchedulerService) NextRun(key string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *SchedulerService) removeLocked(key string) {
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// onceSchedule fires a single time; after that cron sees a zero Next and
// never runs the entry again.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

func buildDailySpec(timeStr, tz string) (string, error) {
	hour, minute, err := model.ParseClock(timeStr)
	if err != nil {
		return "", err
	}
	// cron format: second minute hour dom month dow
	spec := fmt.Sprintf("0 %d %d * * *", minute, hour)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return "", fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return spec, nil
}
