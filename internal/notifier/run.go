package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	rtsup "upsmon/internal/runtime/supervisor"
	logx "upsmon/pkg/logx"
)

// Run drains the queue on the configured interval until ctx ends. With Watch
// enabled it also drains shortly after the queue file is written. A batch in
// progress when ctx ends is finished (within ShutdownGrace) before Run returns.
func (s *Service) Run(ctx context.Context) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = sup.Stop(sctx)
		cancel()
	}()

	trig := make(chan struct{}, 1)
	if s.cfg.Watch && s.watchPath != "" {
		sup.GoRestart("queue.watch", func(c context.Context) error {
			return watchFile(c, s.watchPath, s.cfg.WatchDebounce, trig, s.log)
		},
			rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		)
	}

	timer := time.NewTimer(s.cfg.FirstCheckAfter)
	defer timer.Stop()
	s.log.Info("queue checker scheduled",
		logx.Duration("first_after", s.cfg.FirstCheckAfter),
		logx.Duration("interval", s.cfg.CheckInterval),
		logx.Bool("watch", s.cfg.Watch),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			s.drainLogged(ctx, "interval")
			timer.Reset(s.cfg.CheckInterval)
		case <-trig:
			s.drainLogged(ctx, "watch")
		}
	}
}

func (s *Service) drainLogged(ctx context.Context, reason string) {
	res, err := s.DrainOnce(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("drain failed", logx.String("trigger", reason), logx.Err(err))
		return
	}
	if res.Total() > 0 {
		s.log.Debug("drain done", logx.String("trigger", reason), logx.Int("delivered", res.Delivered), logx.Int("failed", res.Failed), logx.Int("requeued", res.Requeued))
	}
}

// watchFile signals out (non-blocking) after path is created, written or
// renamed into place, coalescing bursts within debounce. The parent directory
// is watched since atomic writes replace the file.
func watchFile(ctx context.Context, path string, debounce time.Duration, out chan<- struct{}, log logx.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}
	log.Debug("watching queue file", logx.String("path", target))

	var fire <-chan time.Time
	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if t == nil {
				t = time.NewTimer(debounce)
			} else {
				if !t.Stop() {
					select {
					case <-t.C:
					default:
					}
				}
				t.Reset(debounce)
			}
			fire = t.C
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			log.Warn("queue watch error", logx.Err(err))
		case <-fire:
			fire = nil
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}
}
