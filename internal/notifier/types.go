package notifier

import (
	"time"

	kit "upsmon/internal/transport"
)

// Config controls queue draining and delivery.
type Config struct {
	Target    kit.ChatTarget
	ParseMode string // default "Markdown"

	CheckInterval   time.Duration // default 5s
	FirstCheckAfter time.Duration // default 5s

	RatePerSec    float64       // default 1
	RetryMax      int           // retries after the first attempt; negative means 0
	RetryBase     time.Duration // default 500ms
	RetryMaxDelay time.Duration // default 10s
	SendTimeout   time.Duration // per attempt; default 15s

	// ShutdownGrace bounds how long a started batch keeps delivering after
	// the run context ends; default 5s.
	ShutdownGrace time.Duration

	// Watch drains early when the queue file changes.
	Watch         bool
	WatchDebounce time.Duration // default 300ms
}

func (c Config) withDefaults() Config {
	if c.ParseMode == "" {
		c.ParseMode = "Markdown"
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.FirstCheckAfter <= 0 {
		c.FirstCheckAfter = 5 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = 300 * time.Millisecond
	}
	return c
}

// Result summarizes one drain.
type Result struct {
	Delivered int
	Failed    int
	// Requeued entries were put back because the batch was cut short.
	Requeued int
}

func (r Result) Total() int { return r.Delivered + r.Failed + r.Requeued }
