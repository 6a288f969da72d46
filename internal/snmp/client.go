// Package snmp reads UPS values from an SNMPv3 agent.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/sony/gobreaker"

	"upsmon/internal/ups"
	logx "upsmon/pkg/logx"
)

var ErrUnreachable = errors.New("snmp agent unreachable")

// errAbsent marks an OID the agent answered without a value. It does not
// count against the breaker.
var errAbsent = errors.New("no value")

// Querier reads raw values. Errors never surface: a field that cannot be read
// is simply missing from the result.
type Querier interface {
	Get(ctx context.Context, oid string) (string, bool)
	Query(ctx context.Context, oids map[ups.Field]string) ups.Reading
}

// session is the part of *gosnmp.GoSNMP the client uses.
type session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}

type dialFunc func(ctx context.Context) (session, error)

type Client struct {
	cfg  Config
	log  logx.Logger
	dial dialFunc
	cb   *gobreaker.CircuitBreaker
}

type Option func(*Client)

// withDialer replaces the network session; used by tests.
func withDialer(d dialFunc) Option {
	return func(c *Client) { c.dial = d }
}

func New(cfg Config, log logx.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("snmp: host is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()

	if _, ok := AuthProtocol(cfg.AuthProtocol); !ok && cfg.AuthProtocol != "" {
		log.Warn("unknown auth protocol, using SHA", logx.String("protocol", cfg.AuthProtocol))
	}
	if _, ok := PrivProtocol(cfg.PrivProtocol); !ok && cfg.PrivProtocol != "" {
		log.Warn("unknown privacy protocol, using AES", logx.String("protocol", cfg.PrivProtocol))
	}
	if _, ok := MsgFlags(cfg.SecurityLevel); !ok {
		log.Warn("unknown security level, using authPriv", logx.String("level", cfg.SecurityLevel))
	}

	c := &Client{cfg: cfg, log: log}
	c.dial = c.dialUDP
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "snmp:" + cfg.Host,
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errAbsent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("snmp breaker state changed", logx.String("breaker", name), logx.String("from", from.String()), logx.String("to", to.String()))
		},
	})
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) dialUDP(ctx context.Context) (session, error) {
	auth, _ := AuthProtocol(c.cfg.AuthProtocol)
	priv, _ := PrivProtocol(c.cfg.PrivProtocol)
	flags, _ := MsgFlags(c.cfg.SecurityLevel)

	usm := &gosnmp.UsmSecurityParameters{UserName: c.cfg.User}
	if flags&gosnmp.AuthNoPriv != 0 {
		usm.AuthenticationProtocol = auth
		usm.AuthenticationPassphrase = c.cfg.AuthPassword
	}
	if flags&gosnmp.AuthPriv == gosnmp.AuthPriv {
		usm.PrivacyProtocol = priv
		usm.PrivacyPassphrase = c.cfg.PrivPassword
	}

	g := &gosnmp.GoSNMP{
		Target:             c.cfg.Host,
		Port:               uint16(c.cfg.Port),
		Transport:          "udp",
		Version:            gosnmp.Version3,
		Timeout:            c.cfg.Timeout,
		Retries:            c.cfg.Retries,
		Context:            ctx,
		MaxOids:            gosnmp.MaxOids,
		SecurityModel:      gosnmp.UserSecurityModel,
		MsgFlags:           flags,
		SecurityParameters: usm,
	}
	if err := g.Connect(); err != nil {
		return nil, err
	}
	return gosnmpSession{g}, nil
}

type gosnmpSession struct{ g *gosnmp.GoSNMP }

func (s gosnmpSession) Get(oids []string) (*gosnmp.SnmpPacket, error) { return s.g.Get(oids) }

func (s gosnmpSession) Close() error {
	if s.g.Conn == nil {
		return nil
	}
	return s.g.Conn.Close()
}

// Get reads one OID over its own session.
func (c *Client) Get(ctx context.Context, oid string) (string, bool) {
	var (
		sess session
		err  error
	)
	_, err = c.cb.Execute(func() (interface{}, error) {
		sess, err = c.dial(ctx)
		return nil, err
	})
	if err != nil {
		c.log.Warn("snmp session failed", logx.String("oid", oid), logx.Err(err))
		return "", false
	}
	defer sess.Close()
	return c.get(ctx, sess, "", oid)
}

// Query reads every OID over one session and applies the configured scale
// factors. Fields with an empty OID are skipped.
func (c *Client) Query(ctx context.Context, oids map[ups.Field]string) ups.Reading {
	out := ups.Reading{}
	var sess session
	_, err := c.cb.Execute(func() (interface{}, error) {
		s, err := c.dial(ctx)
		sess = s
		return nil, err
	})
	if err != nil {
		c.log.Warn("snmp session failed", logx.String("host", c.cfg.Host), logx.Err(err))
		return out
	}
	defer sess.Close()

	for _, f := range ups.AllFields() {
		oid := strings.TrimSpace(oids[f])
		if oid == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		v, ok := c.get(ctx, sess, f, oid)
		if !ok {
			continue
		}
		if factor, ok := c.cfg.Scale[f]; ok {
			v = ups.Scale(v, factor)
		}
		out[f] = v
		c.log.Debug("snmp value", logx.String("field", f.String()), logx.String("value", v))
	}
	return out
}

func (c *Client) get(ctx context.Context, sess session, f ups.Field, oid string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	res, err := c.cb.Execute(func() (interface{}, error) {
		pkt, err := sess.Get([]string{oid})
		if err != nil {
			return nil, err
		}
		if pkt.Error != gosnmp.NoError {
			return nil, fmt.Errorf("agent error %v", pkt.Error)
		}
		if len(pkt.Variables) == 0 {
			return nil, errAbsent
		}
		v, ok := pduString(pkt.Variables[0])
		if !ok {
			return nil, errAbsent
		}
		return v, nil
	})
	if err != nil {
		lvl := c.log.Warn
		if errors.Is(err, errAbsent) {
			lvl = c.log.Debug
		}
		lvl("snmp get failed", logx.String("field", string(f)), logx.String("oid", oid), logx.Err(err))
		return "", false
	}
	return res.(string), true
}

// Ping reads oid once and reports ErrUnreachable when no value comes back.
func (c *Client) Ping(ctx context.Context, oid string) error {
	start := time.Now()
	if _, ok := c.Get(ctx, oid); !ok {
		return fmt.Errorf("%w: %s:%d", ErrUnreachable, c.cfg.Host, c.cfg.Port)
	}
	c.log.Info("snmp agent reachable", logx.String("host", c.cfg.Host), logx.Duration("took", time.Since(start)))
	return nil
}

// pduString renders a varbind the way the agent's MIB shows it. Exception
// values (noSuchObject and friends) have no string form.
func pduString(pdu gosnmp.SnmpPDU) (string, bool) {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return "", false
	case gosnmp.OctetString:
		b, ok := pdu.Value.([]byte)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(string(b)), true
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Counter64, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).String(), true
	}
	if pdu.Value == nil {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprint(pdu.Value)), true
}

var _ Querier = (*Client)(nil)
