// Package systemd speaks the sd_notify protocol for Type=notify units.
// Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "upsmon/pkg/logx"
)

// notify is swapped in tests.
var notify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }

// watchdogInterval is swapped in tests.
var watchdogInterval = func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }

// Notify sends state and logs failures.
func Notify(log logx.Logger, state string) {
	sent, err := notify(state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}

func Ready(log logx.Logger)    { Notify(log, daemon.SdNotifyReady) }
func Stopping(log logx.Logger) { Notify(log, daemon.SdNotifyStopping) }

// Watchdog pings the systemd watchdog at half the configured interval until
// ctx ends. It returns immediately when the unit has no WatchdogSec.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := watchdogInterval()
	if err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			Notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
