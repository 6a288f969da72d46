package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// firstRunSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func makeIntervalSchedule(every time.Duration, now time.Time, opt IntervalOptions) cron.Schedule {
	base := cron.Every(every)
	if opt.FirstAfter <= 0 {
		return base
	}
	return &firstRunSchedule{base: base, first: now.Add(opt.FirstAfter)}
}
