package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "upsmon/pkg/logx"
)

// AddSchedule parses schedule (see ParseSchedule) and registers either a cron
// or an interval job.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, IntervalOptions{}, job)
	default:
		return fmt.Errorf("unsupported schedule kind")
	}
}

// AddCron registers job under name, replacing any schedule with that name.
// The cron expression is validated immediately.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.add(&scheduleDef{name: name, spec: spec, timeout: timeout, job: job})
}

// AddInterval registers job to run every interval. Sub-second intervals are
// rounded up to one second.
func (s *Service) AddInterval(name string, every, timeout time.Duration, opt IntervalOptions, job Job) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return s.add(&scheduleDef{
		name:    name,
		spec:    "@every " + every.String(),
		every:   every,
		opt:     opt,
		timeout: timeout,
		job:     job,
	})
}

// AddDaily runs job once a day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	spec, err := DailySpec(atHHMM)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.AddCron(name, spec, timeout, job)
}

func (s *Service) add(d *scheduleDef) error {
	if strings.TrimSpace(d.name) == "" {
		return errors.New("name required")
	}
	if d.job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name.
	s.removeLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.String("spec", d.spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

// Remove unschedules name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// Entries lists the registered schedules with their next/previous runs (zero
// before Start).
func (s *Service) Entries() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: s.timeoutFor(d)}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		out = append(out, it)
	}
	return out
}

func (s *Service) timeoutFor(d *scheduleDef) time.Duration {
	if d.timeout > 0 {
		return d.timeout
	}
	return s.cfg.DefaultTimeout
}

// addCronLocked registers d with the running cron. Call with s.mu held.
func (s *Service) addCronLocked(d *scheduleDef) error {
	job := cron.FuncJob(func() { s.run(d) })

	if d.every > 0 {
		d.entryID = s.c.Schedule(makeIntervalSchedule(d.every, time.Now().In(s.loc), d.opt), job)
		return nil
	}
	eid, err := s.c.AddJob(d.spec, job)
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) run(d *scheduleDef) {
	s.mu.Lock()
	parent := s.runCtx
	timeout := s.timeoutFor(d)
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.job(ctx)
	took := time.Since(start)
	switch {
	case err != nil && errors.Is(err, context.Canceled) && parent.Err() != nil:
		s.log.Debug("job cancelled", logx.String("name", d.name), logx.Duration("took", took))
	case err != nil:
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
	default:
		s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", took))
	}
}
