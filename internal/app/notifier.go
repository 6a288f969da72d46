package app

import (
	"context"
	"errors"
	"time"

	"upsmon/internal/config"
	"upsmon/internal/notifier"
	"upsmon/internal/observability/metrics"
	"upsmon/internal/observability/server"
	rtsup "upsmon/internal/runtime/supervisor"
	"upsmon/internal/storage"
	kit "upsmon/internal/transport"
	telegram "upsmon/internal/transport/telegram/adapter"
	"upsmon/internal/transport/telegram/router"
	logx "upsmon/pkg/logx"
	"upsmon/pkg/systemd"
)

// Notifier is the Telegram-side process: bot commands plus queue delivery.
type Notifier struct {
	cfg  *config.Config
	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	cmdm    *router.CommandManager
	svc     *notifier.Service
	audit   storage.Audit
	metrics *metrics.Metrics
	http    *server.Service

	updates chan kit.Update
	// grace is how long a running queue batch may take after stop.
	grace time.Duration
}

// NewNotifier validates cfg for the notifier role and builds every component.
// The Telegram adapter contacts the Bot API (getMe) here, so a bad token
// fails fast.
func NewNotifier(cfg *config.Config) (*Notifier, error) {
	if err := cfg.Validate(config.RoleNotifier); err != nil {
		return nil, err
	}
	logs, log := logx.New(mapLogConfig(cfg, "notifier"))
	log = log.With(logx.String("role", "notifier"))

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	ac, err := mapAuditConfig(cfg)
	if err != nil {
		return nil, err
	}
	audit, err := storage.OpenAudit(ac, log.With(logx.String("comp", "audit")))
	if err != nil {
		return nil, err
	}
	if audit != nil {
		log.Info("delivery audit enabled", logx.String("driver", ac.Driver), logx.String("path", ac.Path))
	}

	m := metrics.New()
	queue := storage.NewQueue(cfg.QueuePath(), log.With(logx.String("comp", "queue")))
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := notifier.New(nc, queue, ad, log.With(logx.String("comp", "notifier")),
		notifier.WithAudit(audit),
		notifier.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	cmdm := router.NewCommandManager(router.Config{
		AllowedChats: []int64{cfg.Telegram.ChatID},
	}, ad, log.With(logx.String("comp", "commands")))
	cmdm.Use(router.MWPanicRecover(), router.MWRequestLog())

	return &Notifier{
		cfg:     cfg,
		log:     log,
		logs:    logs,
		adapter: ad,
		cmdm:    cmdm,
		svc:     svc,
		audit:   audit,
		metrics: m,
		http:    server.New(mapHTTPConfig(cfg), m.Registry(), nil, log.With(logx.String("comp", "http"))),
		updates: make(chan kit.Update, 64),
		grace:   svc.ShutdownGrace(),
	}, nil
}

// Run starts the bot and the queue checker and blocks until ctx ends.
func (n *Notifier) Run(ctx context.Context) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(n.log), rtsup.WithCancelOnError(true))
	runCtx := sup.Context()

	n.log.Info("notifier starting",
		logx.Int64("chat_id", n.cfg.Telegram.ChatID),
		logx.String("queue", n.cfg.QueuePath()),
	)
	n.http.Start(runCtx)
	n.cmdm.SetRegistry(runCtx, notifier.Commands(n.cfg.StatePath()))

	if err := n.adapter.Start(runCtx, n.updates); err != nil {
		sup.Cancel()
		n.stop(StopFatalError, sup)
		return err
	}
	sup.Go("commands", func(c context.Context) error { return n.cmdm.DispatchLoop(c, n.updates) })
	sup.Go("queue", n.svc.Run)

	systemd.Ready(n.log)
	sup.Go0("systemd.watchdog", func(c context.Context) { systemd.Watchdog(c, n.log) })

	<-runCtx.Done()
	reason := StopSignal
	if err := sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		reason = StopFatalError
	}
	n.stop(reason, sup)
	if reason == StopFatalError {
		return sup.Err()
	}
	return nil
}

func (n *Notifier) stop(reason StopReason, sup *rtsup.Supervisor) {
	n.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(n.log)

	// The queue batch still sends through the adapter, so the supervisor
	// goes first.
	supMax := n.grace + 2*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), supMax+5*time.Second)
	defer cancel()
	stopStep(ctx, n.log, "supervisor", supMax, func(c context.Context) error { return sup.Stop(c) })
	stopStep(ctx, n.log, "adapter", 3*time.Second, func(c context.Context) error { return n.adapter.Stop(c) })
	stopStep(ctx, n.log, "http", time.Second, func(c context.Context) error { n.http.Stop(c); return nil })
	stopStep(ctx, n.log, "audit", time.Second, func(c context.Context) error {
		if n.audit != nil {
			return n.audit.Close()
		}
		return nil
	})

	n.log.Info("stopped")
	_ = n.logs.Close()
}
