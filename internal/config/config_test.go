package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsmon/internal/ups"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(LoadOptions{EnvFile: "", LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, 161, cfg.SNMP.Port)
	assert.Equal(t, "SHA", cfg.SNMP.AuthProtocol)
	assert.Equal(t, "AES", cfg.SNMP.PrivProtocol)
	assert.Equal(t, "authPriv", cfg.SNMP.SecurityLevel)
	assert.Equal(t, 60, cfg.Poller.CheckIntervalSeconds)
	assert.Equal(t, "09:00", cfg.Poller.DailyReportTime)
	assert.Equal(t, "5s", cfg.Notifier.QueueCheckInterval)
	assert.Equal(t, filepath.Join("data", "ups_state.json"), cfg.StatePath())
	assert.Equal(t, filepath.Join("data", "message_queue.json"), cfg.QueuePath())

	fields := cfg.Fields()
	assert.Len(t, fields, 8)
	assert.Equal(t, "1.3.6.1.4.1.318.1.1.1.4.1.1.0", fields[ups.FieldStatus])
	_, ok := fields[ups.FieldInputFrequency]
	assert.False(t, ok)
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := Load(LoadOptions{LookupEnv: envMap(map[string]string{
		"SNMP_HOST":               "10.0.0.5",
		"SNMP_PORT":               "1161",
		"SNMP_USER":               "monitor",
		"SNMP_TIMEOUT":            "3",
		"SNMP_RETRIES":            "0",
		"OID_UPS_TEMPERATURE":     "",
		"OID_UPS_INPUT_FREQUENCY": "1.3.6.1.4.1.318.1.1.1.3.2.4.0",
		"SCALE_INPUT_FREQUENCY":   "0.1",
		"CHECK_INTERVAL_SECONDS":  "30",
		"DAILY_REPORT_TIME":       "07:45",
		"TELEGRAM_BOT_TOKEN":      "123:abc",
		"TELEGRAM_CHAT_ID":        "-100987",
		"QUEUE_CHECK_INTERVAL":    "10",
		"NOTIFY_RETRY_MAX":        "5",
		"NOTIFY_WATCH":            "false",
		"DATA_DIR":                "/var/lib/upsmon",
		"PPROF_ENABLED":           "true",
	})})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.SNMP.Host)
	assert.Equal(t, 1161, cfg.SNMP.Port)
	assert.Equal(t, "3s", cfg.SNMP.Timeout)
	require.NotNil(t, cfg.SNMP.Retries)
	assert.Equal(t, 0, *cfg.SNMP.Retries)
	assert.Equal(t, 30, cfg.Poller.CheckIntervalSeconds)
	assert.Equal(t, "07:45", cfg.Poller.DailyReportTime)
	assert.Equal(t, int64(-100987), cfg.Telegram.ChatID)
	assert.Equal(t, "10s", cfg.Notifier.QueueCheckInterval)
	require.NotNil(t, cfg.Notifier.RetryMax)
	assert.Equal(t, 5, *cfg.Notifier.RetryMax)
	require.NotNil(t, cfg.Notifier.Watch)
	assert.False(t, *cfg.Notifier.Watch)
	assert.True(t, cfg.HTTP.Pprof)
	assert.Equal(t, "/var/lib/upsmon/ups_state.json", cfg.StatePath())

	fields := cfg.Fields()
	_, hasTemp := fields[ups.FieldTemperature]
	assert.False(t, hasTemp, "empty OID disables the field")
	assert.Equal(t, "1.3.6.1.4.1.318.1.1.1.3.2.4.0", fields[ups.FieldInputFrequency])
	assert.Equal(t, map[ups.Field]float64{ups.FieldInputFrequency: 0.1}, cfg.ScaleFactors())
}

func TestEnvParseErrorsJoined(t *testing.T) {
	t.Parallel()
	_, err := Load(LoadOptions{LookupEnv: envMap(map[string]string{
		"SNMP_PORT":        "x",
		"TELEGRAM_CHAT_ID": "chat",
		"SCALE_ALARMS":     "half",
	})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNMP_PORT")
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
	assert.Contains(t, err.Error(), "SCALE_ALARMS")
}

func TestFileThenDotenvThenEnv(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "upsmon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
snmp:
  host: from-file
  user: file-user
oids:
  alarms: 1.3.6.1.4.1.318.1.1.1.11.1.1.0
telegram:
  chat_id: 42
http:
  addr: 127.0.0.1:9108
`), 0o644))
	envPath := filepath.Join(dir, "upsmon.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SNMP_USER=dotenv-user\nTELEGRAM_BOT_TOKEN=dotenv-token\n"), 0o644))

	cfg, err := Load(LoadOptions{Path: cfgPath, EnvFile: envPath, LookupEnv: envMap(map[string]string{
		"TELEGRAM_BOT_TOKEN": "env-token",
	})})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.SNMP.Host)
	assert.Equal(t, "dotenv-user", cfg.SNMP.User)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, "127.0.0.1:9108", cfg.HTTP.Addr)
	assert.Len(t, cfg.Fields(), 9, "file oids merge over defaults")
}

func TestFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "upsmon.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"snmp":{"hots":"typo"}}`), 0o644))
	_, err := Load(LoadOptions{Path: path, LookupEnv: envMap(nil)})
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{} {}`), 0o644))
	_, err = Load(LoadOptions{Path: path, LookupEnv: envMap(nil)})
	assert.Error(t, err)
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	t.Parallel()
	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "nope.env"), LookupEnv: envMap(nil)})
	assert.Error(t, err)
}

func TestValidatePoller(t *testing.T) {
	t.Parallel()
	cfg := Default()
	err := cfg.Validate(RolePoller)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
	assert.Contains(t, err.Error(), "SNMP_HOST")
	assert.Contains(t, err.Error(), "SNMP_AUTH_PASSWORD")

	cfg.SNMP.Host = "ups.lan"
	cfg.SNMP.User = "monitor"
	cfg.SNMP.AuthPassword = "authpass"
	cfg.SNMP.PrivPassword = "privpass"
	require.NoError(t, cfg.Validate(RolePoller))

	cfg.SNMP.SecurityLevel = "noAuthNoPriv"
	cfg.SNMP.AuthPassword = ""
	cfg.SNMP.PrivPassword = ""
	require.NoError(t, cfg.Validate(RolePoller))

	cfg.Poller.DailyReportTime = "off"
	require.NoError(t, cfg.Validate(RolePoller))

	cfg.Poller.DailyReportTime = "25:00"
	assert.Error(t, cfg.Validate(RolePoller))
	cfg.Poller.DailyReportTime = "09:00"

	cfg.Poller.CheckSchedule = "*/2 * * * *"
	cfg.Poller.CheckIntervalSeconds = 0
	require.NoError(t, cfg.Validate(RolePoller))
	cfg.Poller.CheckSchedule = ""
	assert.Error(t, cfg.Validate(RolePoller))
	cfg.Poller.CheckIntervalSeconds = 60

	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate(RolePoller))
	cfg.Timezone = "Europe/Madrid"

	cfg.OIDs["voltage"] = "1.2.3"
	assert.Error(t, cfg.Validate(RolePoller))
	delete(cfg.OIDs, "voltage")

	for k := range cfg.OIDs {
		cfg.OIDs[k] = ""
	}
	err = cfg.Validate(RolePoller)
	assert.ErrorIs(t, err, ErrMissing)
}

func TestValidateNotifier(t *testing.T) {
	t.Parallel()
	cfg := Default()
	err := cfg.Validate(RoleNotifier)
	assert.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")

	cfg.Telegram.Token = "t"
	cfg.Telegram.ChatID = 1
	require.NoError(t, cfg.Validate(RoleNotifier))

	cfg.Notifier.QueueCheckInterval = "soon"
	assert.Error(t, cfg.Validate(RoleNotifier))

	// Tools need neither credential set.
	require.NoError(t, Default().Validate(RoleTool))
}

func TestAuditPath(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Storage.Audit.Driver = "sqlite"
	assert.Equal(t, filepath.Join("data", "deliveries.db"), cfg.AuditPath())
	cfg.Storage.Audit.Driver = "file"
	assert.Equal(t, filepath.Join("data", "deliveries.jsonl"), cfg.AuditPath())
	cfg.Storage.Audit.Path = "/tmp/x.jsonl"
	assert.Equal(t, "/tmp/x.jsonl", cfg.AuditPath())
}

func TestSecondsOrDuration(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "5s", secondsOrDuration("5"))
	assert.Equal(t, "2.5s", secondsOrDuration(" 2.5 "))
	assert.Equal(t, "1m", secondsOrDuration("1m"))

	d, err := ParseDurationField("x", "")
	require.NoError(t, err)
	assert.Zero(t, d)
	_, err = ParseDurationField("x", "-1s")
	assert.Error(t, err)
}

func TestParseDurationFieldAcceptsSeconds(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("snmp.timeout", "5")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrDefault("x", "0", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ParseDurationField("x", "soon")
	assert.ErrorContains(t, err, "x: invalid duration")
}

func TestFileJSONEmptyYAML(t *testing.T) {
	t.Parallel()
	out, err := fileJSON("upsmon.yml", []byte("\n"))
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(out))

	out, err = fileJSON("upsmon.yaml", []byte("oids:\n  status: 1.2.3\nscale:\n  1: 0.5\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"oids":{"status":"1.2.3"},"scale":{"1":0.5}}`, string(out))
}
