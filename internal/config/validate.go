package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"upsmon/internal/task/scheduler"
	"upsmon/internal/ups"
)

// ErrMissing marks a required setting that is absent.
var ErrMissing = errors.New("missing required setting")

// Role selects which settings Validate requires.
type Role string

const (
	RolePoller   Role = "poller"
	RoleNotifier Role = "notifier"
	// RoleTool covers one-shot commands that only touch the data files.
	RoleTool Role = "tool"
)

// Validate checks cfg for role and returns every problem found.
func (c *Config) Validate(role Role) error {
	var errs []error
	missing := func(name string) { errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, name)) }

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
		}
	}
	for name := range c.OIDs {
		if _, err := ups.ParseField(name); err != nil {
			errs = append(errs, fmt.Errorf("oids: %w", err))
		}
	}
	for name, v := range c.Scale {
		if _, err := ups.ParseField(name); err != nil {
			errs = append(errs, fmt.Errorf("scale: %w", err))
		}
		if v < 0 {
			errs = append(errs, fmt.Errorf("scale.%s: must be >= 0", name))
		}
	}
	if _, err := ParseDurationField("storage.audit.busy_timeout", c.Storage.Audit.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Storage.Audit.Driver) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.audit.driver: unknown driver %q", c.Storage.Audit.Driver))
	}

	switch role {
	case RolePoller:
		if strings.TrimSpace(c.SNMP.Host) == "" {
			missing("SNMP_HOST")
		}
		if strings.TrimSpace(c.SNMP.User) == "" {
			missing("SNMP_USER")
		}
		level := strings.ToLower(c.SNMP.SecurityLevel)
		if level == "authnopriv" || level == "authpriv" || level == "" {
			if c.SNMP.AuthPassword == "" {
				missing("SNMP_AUTH_PASSWORD")
			}
		}
		if level == "authpriv" || level == "" {
			if c.SNMP.PrivPassword == "" {
				missing("SNMP_PRIV_PASSWORD")
			}
		}
		if len(c.Fields()) == 0 {
			missing("at least one OID_UPS_* value")
		}
		for _, kv := range [][2]string{
			{"snmp.timeout", c.SNMP.Timeout},
			{"snmp.breaker_open", c.SNMP.BreakerOpen},
			{"poller.job_timeout", c.Poller.JobTimeout},
		} {
			if _, err := ParseDurationField(kv[0], kv[1]); err != nil {
				errs = append(errs, err)
			}
		}
		if s := strings.TrimSpace(c.Poller.CheckSchedule); s != "" {
			if _, err := scheduler.ParseSchedule(s); err != nil {
				errs = append(errs, fmt.Errorf("CHECK_SCHEDULE: %w", err))
			}
		} else if c.Poller.CheckIntervalSeconds <= 0 {
			errs = append(errs, errors.New("CHECK_INTERVAL_SECONDS: must be > 0"))
		}
		if t := c.Poller.DailyReportTime; !DailyReportDisabled(t) {
			if _, _, err := scheduler.ParseHHMM(t); err != nil {
				errs = append(errs, fmt.Errorf("DAILY_REPORT_TIME: %w", err))
			}
		}

	case RoleNotifier:
		if strings.TrimSpace(c.Telegram.Token) == "" {
			missing("TELEGRAM_BOT_TOKEN")
		}
		if c.Telegram.ChatID == 0 {
			missing("TELEGRAM_CHAT_ID")
		}
		for _, kv := range [][2]string{
			{"QUEUE_CHECK_INTERVAL", c.Notifier.QueueCheckInterval},
			{"notifier.first_check_after", c.Notifier.FirstCheckAfter},
			{"notifier.send_timeout", c.Notifier.SendTimeout},
			{"NOTIFY_SHUTDOWN_GRACE", c.Notifier.ShutdownGrace},
			{"telegram.poll_timeout", c.Telegram.PollTimeout},
		} {
			if _, err := ParseDurationField(kv[0], kv[1]); err != nil {
				errs = append(errs, err)
			}
		}
		if c.Notifier.RatePerSec < 0 {
			errs = append(errs, errors.New("NOTIFY_RATE_PER_SEC: must be >= 0"))
		}
	}
	return errors.Join(errs...)
}

// DailyReportDisabled reports whether v turns the daily report off.
func DailyReportDisabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "off", "none", "disabled":
		return true
	}
	return false
}
