package storage

import (
	"context"
	"errors"
	"strings"

	logx "upsmon/pkg/logx"
)

// Audit is the delivery ledger used by the notifier.
type Audit interface {
	AppendDelivery(ctx context.Context, r DeliveryRecord) error
	Close() error
}

// OpenAudit initializes the configured ledger.
// It returns (nil, nil) if auditing is disabled.
func OpenAudit(cfg AuditConfig, log logx.Logger) (Audit, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFileAudit(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
