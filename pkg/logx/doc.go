// Package logx configures upsmon's structured logging.
//
// Both processes (poller and notifier) share this small wrapper on top of
// zerolog:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one file per process under LOG_DIR
package logx
