// Package app wires the poller and notifier processes from config.
package app

import (
	"context"
	"errors"
	"time"

	"upsmon/internal/config"
	"upsmon/internal/observability/metrics"
	"upsmon/internal/observability/server"
	"upsmon/internal/poller"
	rtsup "upsmon/internal/runtime/supervisor"
	"upsmon/internal/snmp"
	"upsmon/internal/storage"
	"upsmon/internal/task/scheduler"
	logx "upsmon/pkg/logx"
	"upsmon/pkg/systemd"
)

// Poller is the device-side process.
type Poller struct {
	cfg  *config.Config
	log  logx.Logger
	logs *logx.Service

	client  *snmp.Client
	svc     *poller.Service
	sched   *scheduler.Service
	metrics *metrics.Metrics
	http    *server.Service
}

// NewPoller validates cfg for the poller role and builds every component.
// Nothing touches the network until Run.
func NewPoller(cfg *config.Config) (*Poller, error) {
	if err := cfg.Validate(config.RolePoller); err != nil {
		return nil, err
	}
	logs, log := logx.New(mapLogConfig(cfg, "poller"))
	log = log.With(logx.String("role", "poller"))

	sc, err := mapSNMPConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := snmp.New(sc, log.With(logx.String("comp", "snmp")))
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Timezone}, log.With(logx.String("comp", "scheduler")))
	clock := func() time.Time { return time.Now().In(sched.Location()) }

	state := storage.OpenStateStore(cfg.StatePath(), log.With(logx.String("comp", "state")), storage.WithStateClock(clock))
	queue := storage.NewQueue(cfg.QueuePath(), log.With(logx.String("comp", "queue")), storage.WithQueueClock(clock))
	m := metrics.New()

	pc, err := mapPollerConfig(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := poller.New(pc, client, state, queue, log.With(logx.String("comp", "poller")),
		poller.WithMetrics(m),
		poller.WithClock(clock),
	)
	if err != nil {
		return nil, err
	}
	if err := svc.Register(sched); err != nil {
		return nil, err
	}

	return &Poller{
		cfg:     cfg,
		log:     log,
		logs:    logs,
		client:  client,
		svc:     svc,
		sched:   sched,
		metrics: m,
		http:    server.New(mapHTTPConfig(cfg), m.Registry(), nil, log.With(logx.String("comp", "http"))),
	}, nil
}

// Run probes the device, starts the schedules and blocks until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(p.log), rtsup.WithCancelOnError(true))
	runCtx := sup.Context()

	p.log.Info("poller starting",
		logx.Int("fields", len(p.svc.Fields())),
		logx.String("state", p.cfg.StatePath()),
		logx.String("queue", p.cfg.QueuePath()),
	)
	p.http.Start(runCtx)

	if err := p.svc.Startup(runCtx); err != nil {
		p.log.Error("startup notification failed", logx.Err(err))
	}
	p.sched.Start(runCtx)
	for _, e := range p.sched.Entries() {
		p.log.Info("schedule registered", logx.String("name", e.Name), logx.String("spec", e.Spec), logx.Time("next", e.Next))
	}

	systemd.Ready(p.log)
	sup.Go0("systemd.watchdog", func(c context.Context) { systemd.Watchdog(c, p.log) })

	<-runCtx.Done()
	reason := StopSignal
	if err := sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		reason = StopFatalError
	}
	p.stop(reason, sup)
	if reason == StopFatalError {
		return sup.Err()
	}
	return nil
}

func (p *Poller) stop(reason StopReason, sup *rtsup.Supervisor) {
	p.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(p.log)

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	stopStep(ctx, p.log, "scheduler", 4*time.Second, func(c context.Context) error { p.sched.Stop(c); return nil })
	stopStep(ctx, p.log, "http", time.Second, func(c context.Context) error { p.http.Stop(c); return nil })
	stopStep(ctx, p.log, "supervisor", 2*time.Second, func(c context.Context) error { return sup.Stop(c) })

	p.log.Info("stopped")
	_ = p.logs.Close()
}

// Probe queries every configured field once and returns the reading.
func (p *Poller) Probe(ctx context.Context) (map[string]string, error) {
	r := p.client.Query(ctx, p.cfg.Fields())
	if len(r) == 0 {
		return nil, snmp.ErrUnreachable
	}
	out := make(map[string]string, len(r))
	for f, v := range r {
		out[string(f)] = v
	}
	return out, nil
}

// Close releases logging resources when Run was never called.
func (p *Poller) Close() error { return p.logs.Close() }
