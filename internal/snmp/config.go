package snmp

import (
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"upsmon/internal/ups"
)

const (
	DefaultPort            = 161
	DefaultTimeout         = 5 * time.Second
	DefaultRetries         = 3
	DefaultBreakerFailures = 3
	DefaultBreakerOpen     = 30 * time.Second
)

// Config describes one SNMPv3 agent.
type Config struct {
	Host string
	Port int
	User string

	AuthProtocol  string // MD5, SHA, SHA224, SHA256, SHA384, SHA512
	AuthPassword  string
	PrivProtocol  string // DES, AES, AES128, AES192, AES256, AES192C, AES256C
	PrivPassword  string
	SecurityLevel string // authPriv, authNoPriv, noAuthNoPriv

	Timeout time.Duration
	Retries int

	// BreakerFailures consecutive transport failures open the breaker for
	// BreakerOpen; while open every query returns immediately.
	BreakerFailures int
	BreakerOpen     time.Duration

	// Scale multiplies numeric values of the listed fields.
	Scale map[ups.Field]float64
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = DefaultRetries
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerOpen <= 0 {
		c.BreakerOpen = DefaultBreakerOpen
	}
	if strings.TrimSpace(c.SecurityLevel) == "" {
		c.SecurityLevel = "authPriv"
	}
	return c
}

var authProtocols = map[string]gosnmp.SnmpV3AuthProtocol{
	"MD5":    gosnmp.MD5,
	"SHA":    gosnmp.SHA,
	"SHA1":   gosnmp.SHA,
	"SHA224": gosnmp.SHA224,
	"SHA256": gosnmp.SHA256,
	"SHA384": gosnmp.SHA384,
	"SHA512": gosnmp.SHA512,
}

var privProtocols = map[string]gosnmp.SnmpV3PrivProtocol{
	"DES":     gosnmp.DES,
	"AES":     gosnmp.AES,
	"AES128":  gosnmp.AES,
	"AES192":  gosnmp.AES192,
	"AES256":  gosnmp.AES256,
	"AES192C": gosnmp.AES192C,
	"AES256C": gosnmp.AES256C,
}

// AuthProtocol maps a protocol name to gosnmp. ok is false for unknown names,
// in which case SHA is returned.
func AuthProtocol(name string) (gosnmp.SnmpV3AuthProtocol, bool) {
	p, ok := authProtocols[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return gosnmp.SHA, false
	}
	return p, true
}

// PrivProtocol maps a protocol name to gosnmp. ok is false for unknown names
// (including 3DES, which gosnmp does not implement), in which case AES is
// returned.
func PrivProtocol(name string) (gosnmp.SnmpV3PrivProtocol, bool) {
	p, ok := privProtocols[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return gosnmp.AES, false
	}
	return p, true
}

// MsgFlags maps an RFC 3414 security level name.
func MsgFlags(level string) (gosnmp.SnmpV3MsgFlags, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "authpriv", "":
		return gosnmp.AuthPriv, true
	case "authnopriv":
		return gosnmp.AuthNoPriv, true
	case "noauthnopriv":
		return gosnmp.NoAuthNoPriv, true
	}
	return gosnmp.AuthPriv, false
}
