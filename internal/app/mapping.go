package app

import (
	"path/filepath"
	"strings"
	"time"

	"upsmon/internal/config"
	"upsmon/internal/notifier"
	"upsmon/internal/observability/server"
	"upsmon/internal/poller"
	"upsmon/internal/snmp"
	"upsmon/internal/storage"
	kit "upsmon/internal/transport"
	telegram "upsmon/internal/transport/telegram/adapter"
	logx "upsmon/pkg/logx"
)

func mapLogConfig(cfg *config.Config, role string) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	lc := logx.Config{Level: cfg.Logging.Level, Console: console}
	if dir := strings.TrimSpace(cfg.Logging.Dir); dir != "" {
		lc.File = logx.FileConfig{Enabled: true, Path: filepath.Join(dir, role+".log")}
	}
	return lc
}

func mapSNMPConfig(cfg *config.Config) (snmp.Config, error) {
	timeout, err := config.ParseDurationOrDefault("snmp.timeout", cfg.SNMP.Timeout, snmp.DefaultTimeout)
	if err != nil {
		return snmp.Config{}, err
	}
	breakerOpen, err := config.ParseDurationOrDefault("snmp.breaker_open", cfg.SNMP.BreakerOpen, snmp.DefaultBreakerOpen)
	if err != nil {
		return snmp.Config{}, err
	}
	retries := -1
	if cfg.SNMP.Retries != nil {
		retries = *cfg.SNMP.Retries
	}
	return snmp.Config{
		Host:            cfg.SNMP.Host,
		Port:            cfg.SNMP.Port,
		User:            cfg.SNMP.User,
		AuthProtocol:    cfg.SNMP.AuthProtocol,
		AuthPassword:    cfg.SNMP.AuthPassword,
		PrivProtocol:    cfg.SNMP.PrivProtocol,
		PrivPassword:    cfg.SNMP.PrivPassword,
		SecurityLevel:   cfg.SNMP.SecurityLevel,
		Timeout:         timeout,
		Retries:         retries,
		BreakerFailures: cfg.SNMP.BreakerFailures,
		BreakerOpen:     breakerOpen,
		Scale:           cfg.ScaleFactors(),
	}, nil
}

func mapPollerConfig(cfg *config.Config) (poller.Config, error) {
	jobTimeout, err := config.ParseDurationField("poller.job_timeout", cfg.Poller.JobTimeout)
	if err != nil {
		return poller.Config{}, err
	}
	daily := cfg.Poller.DailyReportTime
	if config.DailyReportDisabled(daily) {
		daily = ""
	}
	return poller.Config{
		OIDs:          cfg.Fields(),
		Interval:      time.Duration(cfg.Poller.CheckIntervalSeconds) * time.Second,
		Schedule:      strings.TrimSpace(cfg.Poller.CheckSchedule),
		DailyReportAt: daily,
		JobTimeout:    jobTimeout,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	interval, err := config.ParseDurationField("notifier.queue_check_interval", nc.QueueCheckInterval)
	if err != nil {
		return notifier.Config{}, err
	}
	first, err := config.ParseDurationField("notifier.first_check_after", nc.FirstCheckAfter)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", nc.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	grace, err := config.ParseDurationField("notifier.shutdown_grace", nc.ShutdownGrace)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax := 3
	if nc.RetryMax != nil {
		retryMax = *nc.RetryMax
	}
	watch := true
	if nc.Watch != nil {
		watch = *nc.Watch
	}
	return notifier.Config{
		Target:          kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		CheckInterval:   interval,
		FirstCheckAfter: first,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        retryMax,
		SendTimeout:     sendTimeout,
		ShutdownGrace:   grace,
		Watch:           watch,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		APIURL:      cfg.Telegram.APIURL,
	}, nil
}

func mapAuditConfig(cfg *config.Config) (storage.AuditConfig, error) {
	busy, err := config.ParseDurationOrDefault("storage.audit.busy_timeout", cfg.Storage.Audit.BusyTimeout, time.Second)
	if err != nil {
		return storage.AuditConfig{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Audit.Driver))
	if driver == "" || driver == "none" {
		return storage.AuditConfig{}, nil
	}
	return storage.AuditConfig{Driver: driver, Path: cfg.AuditPath(), BusyTimeout: busy}, nil
}

func mapHTTPConfig(cfg *config.Config) server.Config {
	return server.Config{
		Addr:          cfg.HTTP.Addr,
		Token:         cfg.HTTP.Token,
		AllowInsecure: cfg.HTTP.AllowInsecure,
		Pprof:         cfg.HTTP.Pprof,
		ReadTimeout:   10 * time.Second,
		// pprof profiles stream for up to 30s by default
		WriteTimeout: 60 * time.Second,
	}
}
