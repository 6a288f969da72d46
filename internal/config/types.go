// Package config loads upsmon settings from defaults, an optional YAML/JSON
// file, a .env file and the process environment, in increasing precedence.
package config

// Config is the full settings tree. Durations are Go duration strings.
type Config struct {
	SNMP SNMPConfig `json:"snmp"`

	// OIDs maps field names (status, battery_capacity, ...) to OIDs. An
	// empty OID disables the field.
	OIDs map[string]string `json:"oids,omitempty"`

	// Scale multiplies numeric values of a field before they are stored.
	Scale map[string]float64 `json:"scale,omitempty"`

	Poller   PollerConfig   `json:"poller"`
	Notifier NotifierConfig `json:"notifier"`
	Telegram TelegramConfig `json:"telegram"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`

	// Timezone is an IANA name used for the daily report and timestamps.
	// Empty means the host's local time.
	Timezone string `json:"timezone,omitempty"`
}

type SNMPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
	User string `json:"user"`

	AuthProtocol  string `json:"auth_protocol,omitempty"`
	AuthPassword  string `json:"auth_password,omitempty"`
	PrivProtocol  string `json:"priv_protocol,omitempty"`
	PrivPassword  string `json:"priv_password,omitempty"`
	SecurityLevel string `json:"security_level,omitempty"`

	Timeout string `json:"timeout,omitempty"`
	// Retries is a pointer so an explicit 0 survives defaulting.
	Retries *int `json:"retries,omitempty"`

	BreakerFailures int    `json:"breaker_failures,omitempty"`
	BreakerOpen     string `json:"breaker_open,omitempty"`
}

type PollerConfig struct {
	CheckIntervalSeconds int `json:"check_interval_seconds,omitempty"`
	// CheckSchedule overrides CheckIntervalSeconds; cron ("*/5 * * * *") or
	// duration ("90s").
	CheckSchedule   string `json:"check_schedule,omitempty"`
	DailyReportTime string `json:"daily_report_time,omitempty"` // HH:MM; "off" disables
	JobTimeout      string `json:"job_timeout,omitempty"`
}

type NotifierConfig struct {
	QueueCheckInterval string  `json:"queue_check_interval,omitempty"`
	FirstCheckAfter    string  `json:"first_check_after,omitempty"`
	RatePerSec         float64 `json:"rate_per_sec,omitempty"`
	RetryMax           *int    `json:"retry_max,omitempty"`
	SendTimeout        string  `json:"send_timeout,omitempty"`
	Watch              *bool   `json:"watch,omitempty"`
	ShutdownGrace      string  `json:"shutdown_grace,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	ChatID      int64  `json:"chat_id"`
	ThreadID    int    `json:"thread_id,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	APIURL      string `json:"api_url,omitempty"`
}

type StorageConfig struct {
	DataDir   string      `json:"data_dir,omitempty"`
	StateFile string      `json:"state_file,omitempty"` // relative to DataDir unless absolute
	QueueFile string      `json:"queue_file,omitempty"`
	Audit     AuditConfig `json:"audit"`
}

type AuditConfig struct {
	Driver      string `json:"driver,omitempty"` // none, file, sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	// Dir, when set, adds a JSON log file <Dir>/<role>.log.
	Dir string `json:"dir,omitempty"`
}

// HTTPConfig controls the metrics/health endpoint. Empty Addr disables it.
type HTTPConfig struct {
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
