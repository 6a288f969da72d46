// Package storage holds the files the two upsmon processes share.
//
// It provides:
//   - StateStore: last known UPS reading (single writer: the poller)
//   - Queue: notification mailbox (poller appends, notifier drains)
//   - Audit: optional delivery ledger written by the notifier
//
// Every rewrite goes through a temp file + rename so a crash never leaves a
// half-written JSON document behind.
package storage
