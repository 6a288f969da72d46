package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("audit disabled")

// AuditConfig configures the delivery ledger.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", no ledger is kept.
type AuditConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one delivery attempt outcome for a queue entry.
type DeliveryRecord struct {
	At       time.Time `json:"at"`
	EntryID  string    `json:"entry_id"`
	Type     EntryType `json:"type"`
	QueuedAt time.Time `json:"queued_at"`
	OK       bool      `json:"ok"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
