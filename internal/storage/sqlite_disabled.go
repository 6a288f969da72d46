//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "upsmon/pkg/logx"
)

func openSQLite(cfg AuditConfig, log logx.Logger) (Audit, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite audit not built: build with -tags sqlite or use AUDIT_DRIVER=file")
}
