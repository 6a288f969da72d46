// Package poller runs the device side: periodic checks, change alerts and the
// daily report, all handed to the notifier through the queue file.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"upsmon/internal/observability/metrics"
	"upsmon/internal/report"
	"upsmon/internal/snmp"
	"upsmon/internal/storage"
	"upsmon/internal/task/scheduler"
	"upsmon/internal/ups"
	logx "upsmon/pkg/logx"
)

// Device is the SNMP side the poller needs.
type Device interface {
	snmp.Querier
	Ping(ctx context.Context, oid string) error
}

// commitTimeout bounds queueing an alert for a change already stored.
const commitTimeout = 10 * time.Second

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, e storage.Entry) (storage.Entry, error)
}

type Config struct {
	OIDs map[ups.Field]string

	// Interval between checks. Schedule, when set, takes precedence and
	// accepts anything scheduler.ParseSchedule does.
	Interval time.Duration
	Schedule string

	DailyReportAt string // HH:MM, empty disables the daily report
	JobTimeout    time.Duration
}

const (
	jobCheck       = "ups.check"
	jobDailyReport = "ups.daily_report"
)

type Service struct {
	cfg    Config
	fields []ups.Field

	dev     Device
	state   *storage.StateStore
	queue   Enqueuer
	metrics *metrics.Metrics
	log     logx.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, dev Device, state *storage.StateStore, queue Enqueuer, log logx.Logger, opts ...Option) (*Service, error) {
	if dev == nil || state == nil || queue == nil {
		return nil, errors.New("poller: device, state and queue are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:   cfg,
		dev:   dev,
		state: state,
		queue: queue,
		log:   log,
		now:   time.Now,
	}
	for f, oid := range cfg.OIDs {
		if strings.TrimSpace(oid) != "" {
			s.fields = append(s.fields, f)
		}
	}
	if len(s.fields) == 0 {
		return nil, errors.New("poller: no OIDs configured")
	}
	sort.Slice(s.fields, func(i, j int) bool { return fieldOrder(s.fields[i]) < fieldOrder(s.fields[j]) })
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Fields lists the configured fields in canonical order.
func (s *Service) Fields() []ups.Field { return append([]ups.Field(nil), s.fields...) }

func fieldOrder(f ups.Field) int {
	for i, x := range ups.AllFields() {
		if x == f {
			return i
		}
	}
	return len(ups.AllFields())
}

// Check polls the device once. A total outage queues an error and leaves the
// state untouched; otherwise the state is updated and any change is queued as
// an alert. Failures are queued as error entries and also returned.
func (s *Service) Check(ctx context.Context) (err error) {
	start := s.now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			s.metrics.ObservePoll(metrics.ResultError, s.now().Sub(start), start)
			s.log.Error("check panicked", logx.Any("panic", rec))
			s.enqueueBestEffort(ctx, storage.EntryError, report.CheckFailedText(err))
		}
	}()

	r := s.dev.Query(ctx, s.cfg.OIDs)
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	took := s.now().Sub(start)

	if ups.AllAbsent(r, s.fields) {
		s.metrics.ObservePoll(metrics.ResultOutage, took, start)
		s.log.Warn("ups unreachable: no configured field answered", logx.Int("fields", len(s.fields)))
		return s.enqueue(ctx, storage.EntryError, report.OutageText)
	}

	s.metrics.ObserveReading(r)
	delta := s.state.Update(r)
	s.metrics.ObserveChanges(delta)
	s.metrics.ObservePoll(metrics.ResultOK, took, start)
	s.log.Debug("check done", logx.Int("fields", len(r)), logx.Int("changes", len(delta)), logx.Duration("took", took))

	msg, ok := report.ChangeMessage(delta, s.now())
	if !ok {
		return nil
	}
	// The change is already in the state file and will not be seen again, so
	// the alert is queued even if ctx ends now.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := s.enqueue(cctx, storage.EntryAlert, msg); err != nil {
		s.log.Error("change alert lost", logx.Int("changes", len(delta)), logx.Err(err))
		_ = s.enqueue(cctx, storage.EntryError, report.AlertNotQueuedText)
		return err
	}
	return nil
}

// DailyReport queues the full-state report. It reads the device directly and
// does not touch the stored state; an outage skips the report.
func (s *Service) DailyReport(ctx context.Context) error {
	r := s.dev.Query(ctx, s.cfg.OIDs)
	if err := ctx.Err(); err != nil {
		return err
	}
	if ups.AllAbsent(r, s.fields) {
		s.log.Warn("daily report skipped: ups unreachable")
		return nil
	}
	s.metrics.ObserveReading(r)
	return s.enqueue(ctx, storage.EntryDailyReport, report.DailyReport(r, s.now()))
}

// Startup probes the device once. A failed probe is queued as an error; a
// successful one sends an initial daily report.
func (s *Service) Startup(ctx context.Context) error {
	oid := s.probeOID()
	if err := s.dev.Ping(ctx, oid); err != nil {
		s.log.Error("startup probe failed", logx.String("oid", oid), logx.Err(err))
		return s.enqueue(ctx, storage.EntryError, report.StartupOutageText)
	}
	s.log.Info("startup probe ok", logx.String("oid", oid))
	return s.DailyReport(ctx)
}

func (s *Service) probeOID() string {
	if oid := s.cfg.OIDs[ups.FieldStatus]; strings.TrimSpace(oid) != "" {
		return oid
	}
	return s.cfg.OIDs[s.fields[0]]
}

// Register installs the check and daily-report jobs on sched.
func (s *Service) Register(sched *scheduler.Service) error {
	var err error
	if strings.TrimSpace(s.cfg.Schedule) != "" {
		err = sched.AddSchedule(jobCheck, s.cfg.Schedule, s.cfg.JobTimeout, s.Check)
	} else {
		err = sched.AddInterval(jobCheck, s.cfg.Interval, s.cfg.JobTimeout, scheduler.IntervalOptions{}, s.Check)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.cfg.DailyReportAt) == "" {
		s.log.Info("daily report disabled")
		return nil
	}
	return sched.AddDaily(jobDailyReport, s.cfg.DailyReportAt, s.cfg.JobTimeout, s.DailyReport)
}

func (s *Service) enqueue(ctx context.Context, t storage.EntryType, msg string) error {
	if _, err := s.queue.Enqueue(ctx, storage.Entry{Type: t, Message: msg}); err != nil {
		s.log.Error("enqueue failed", logx.String("type", string(t)), logx.Err(err))
		return err
	}
	s.metrics.ObserveEnqueue(string(t))
	return nil
}

func (s *Service) enqueueBestEffort(ctx context.Context, t storage.EntryType, msg string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	_ = s.enqueue(cctx, t, msg)
}
