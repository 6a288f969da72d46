package config

import (
	"path/filepath"

	"upsmon/internal/ups"
)

const (
	DefaultCheckIntervalSeconds = 60
	DefaultDailyReportTime      = "09:00"
	DefaultDataDir              = "data"
	DefaultStateFile            = "ups_state.json"
	DefaultQueueFile            = "message_queue.json"
	DefaultQueueCheckInterval   = "5s"
)

// DefaultOIDs are the APC PowerNet MIB objects for the core fields. The
// optional fields start disabled.
var DefaultOIDs = map[ups.Field]string{
	ups.FieldStatus:          "1.3.6.1.4.1.318.1.1.1.4.1.1.0",
	ups.FieldBatteryStatus:   "1.3.6.1.4.1.318.1.1.1.2.1.1.0",
	ups.FieldBatteryCapacity: "1.3.6.1.4.1.318.1.1.1.2.2.1.0",
	ups.FieldBatteryRuntime:  "1.3.6.1.4.1.318.1.1.1.2.2.3.0",
	ups.FieldInputVoltage:    "1.3.6.1.4.1.318.1.1.1.3.2.1.0",
	ups.FieldOutputVoltage:   "1.3.6.1.4.1.318.1.1.1.4.2.1.0",
	ups.FieldOutputLoad:      "1.3.6.1.4.1.318.1.1.1.4.2.3.0",
	ups.FieldTemperature:     "1.3.6.1.4.1.318.1.1.1.2.2.2.0",
}

// Default returns a config with every default filled in.
func Default() *Config {
	oids := make(map[string]string, len(DefaultOIDs))
	for f, oid := range DefaultOIDs {
		oids[string(f)] = oid
	}
	return &Config{
		SNMP: SNMPConfig{
			Port:          161,
			AuthProtocol:  "SHA",
			PrivProtocol:  "AES",
			SecurityLevel: "authPriv",
			Timeout:       "5s",
		},
		OIDs:  oids,
		Scale: map[string]float64{},
		Poller: PollerConfig{
			CheckIntervalSeconds: DefaultCheckIntervalSeconds,
			DailyReportTime:      DefaultDailyReportTime,
		},
		Notifier: NotifierConfig{
			QueueCheckInterval: DefaultQueueCheckInterval,
			FirstCheckAfter:    "5s",
			RatePerSec:         1,
		},
		Storage: StorageConfig{
			DataDir:   DefaultDataDir,
			StateFile: DefaultStateFile,
			QueueFile: DefaultQueueFile,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// StatePath is the state file location.
func (c *Config) StatePath() string { return c.resolve(c.Storage.StateFile, DefaultStateFile) }

// QueuePath is the queue file location.
func (c *Config) QueuePath() string { return c.resolve(c.Storage.QueueFile, DefaultQueueFile) }

// AuditPath is the ledger location for the configured driver.
func (c *Config) AuditPath() string {
	def := "deliveries.jsonl"
	if d := c.Storage.Audit.Driver; d == "sqlite" || d == "sqlite3" {
		def = "deliveries.db"
	}
	return c.resolve(c.Storage.Audit.Path, def)
}

func (c *Config) resolve(name, def string) string {
	if name == "" {
		name = def
	}
	if filepath.IsAbs(name) {
		return name
	}
	dir := c.Storage.DataDir
	if dir == "" {
		dir = DefaultDataDir
	}
	return filepath.Join(dir, name)
}

// Fields returns the configured field → OID map, skipping disabled fields.
// Unknown field names are reported by Validate.
func (c *Config) Fields() map[ups.Field]string {
	out := make(map[ups.Field]string, len(c.OIDs))
	for name, oid := range c.OIDs {
		f, err := ups.ParseField(name)
		if err != nil || oid == "" {
			continue
		}
		out[f] = oid
	}
	return out
}

// ScaleFactors returns the per-field scale map.
func (c *Config) ScaleFactors() map[ups.Field]float64 {
	out := make(map[ups.Field]float64, len(c.Scale))
	for name, v := range c.Scale {
		f, err := ups.ParseField(name)
		if err != nil {
			continue
		}
		out[f] = v
	}
	return out
}
