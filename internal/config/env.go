package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"upsmon/internal/ups"
)

type lookupFunc func(string) (string, bool)

// applyEnv overlays the deployment environment variables on cfg. Numeric
// parse errors are collected and returned together.
func applyEnv(cfg *Config, env lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	numPtr := func(key string, dst **int) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = &n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	seconds := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = secondsOrDuration(v)
		}
	}

	str("SNMP_HOST", &cfg.SNMP.Host)
	num("SNMP_PORT", &cfg.SNMP.Port)
	str("SNMP_USER", &cfg.SNMP.User)
	str("SNMP_AUTH_PROTOCOL", &cfg.SNMP.AuthProtocol)
	str("SNMP_AUTH_PASSWORD", &cfg.SNMP.AuthPassword)
	str("SNMP_PRIV_PROTOCOL", &cfg.SNMP.PrivProtocol)
	str("SNMP_PRIV_PASSWORD", &cfg.SNMP.PrivPassword)
	str("SNMP_SECURITY_LEVEL", &cfg.SNMP.SecurityLevel)
	seconds("SNMP_TIMEOUT", &cfg.SNMP.Timeout)
	numPtr("SNMP_RETRIES", &cfg.SNMP.Retries)

	if cfg.OIDs == nil {
		cfg.OIDs = map[string]string{}
	}
	if cfg.Scale == nil {
		cfg.Scale = map[string]float64{}
	}
	for _, f := range ups.AllFields() {
		if v, ok := env("OID_UPS_" + f.EnvSuffix()); ok {
			cfg.OIDs[string(f)] = strings.TrimSpace(v)
		}
		if v, ok := env("SCALE_" + f.EnvSuffix()); ok && strings.TrimSpace(v) != "" {
			x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("SCALE_%s: %w", f.EnvSuffix(), err))
				continue
			}
			cfg.Scale[string(f)] = x
		}
	}

	num("CHECK_INTERVAL_SECONDS", &cfg.Poller.CheckIntervalSeconds)
	str("CHECK_SCHEDULE", &cfg.Poller.CheckSchedule)
	str("DAILY_REPORT_TIME", &cfg.Poller.DailyReportTime)
	str("TIMEZONE", &cfg.Timezone)

	str("DATA_DIR", &cfg.Storage.DataDir)
	str("LOG_DIR", &cfg.Logging.Dir)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("AUDIT_DRIVER", &cfg.Storage.Audit.Driver)
	str("AUDIT_PATH", &cfg.Storage.Audit.Path)

	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	if v, ok := env("TELEGRAM_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			cfg.Telegram.ChatID = id
		}
	}
	num("TELEGRAM_THREAD_ID", &cfg.Telegram.ThreadID)

	seconds("QUEUE_CHECK_INTERVAL", &cfg.Notifier.QueueCheckInterval)
	if v, ok := env("NOTIFY_RATE_PER_SEC"); ok && strings.TrimSpace(v) != "" {
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("NOTIFY_RATE_PER_SEC: %w", err))
		} else {
			cfg.Notifier.RatePerSec = x
		}
	}
	numPtr("NOTIFY_RETRY_MAX", &cfg.Notifier.RetryMax)
	seconds("NOTIFY_SHUTDOWN_GRACE", &cfg.Notifier.ShutdownGrace)
	if v, ok := env("NOTIFY_WATCH"); ok && strings.TrimSpace(v) != "" {
		var watch bool
		boolean("NOTIFY_WATCH", &watch)
		cfg.Notifier.Watch = &watch
	}

	str("METRICS_ADDR", &cfg.HTTP.Addr)
	str("METRICS_TOKEN", &cfg.HTTP.Token)
	boolean("PPROF_ENABLED", &cfg.HTTP.Pprof)

	return errors.Join(errs...)
}
