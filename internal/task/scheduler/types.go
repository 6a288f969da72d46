package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "upsmon/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	Timezone       string        // IANA TZ, e.g. "Europe/Madrid"; empty means Local
	DefaultTimeout time.Duration // per-run timeout when a job registers none; 0 means none
}

// Job is the unit of work. ctx is cancelled on timeout or Stop.
type Job func(ctx context.Context) error

// IntervalOptions tune interval schedules.
type IntervalOptions struct {
	// FirstAfter overrides the delay before the first run. Zero means one full
	// interval.
	FirstAfter time.Duration
}

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	every   time.Duration
	opt     IntervalOptions
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	runCtx    context.Context
	runCancel context.CancelFunc
}

// ScheduleInfo describes one registered schedule.
type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}
