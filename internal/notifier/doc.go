// Package notifier is the consumer side of the queue file.
//
// # Delivery
//
// DrainOnce empties the queue under its lock and then delivers the entries in
// insertion order through a transport.Sender, paced by a token bucket. Each
// entry gets a bounded number of retries. An entry that still fails is logged,
// written to the audit ledger and counted, but it is not put back: the queue
// is already empty by then, and re-appending would reorder it behind newer
// alerts.
//
// Shutdown does not count as a failure. A batch that is running when the
// process is asked to stop keeps delivering for a bounded grace period; any
// entry it does not reach is put back at the head of the queue for the next
// run.
//
// # Triggers
//
// Run drains on a fixed interval and, when watching is enabled, shortly after
// the queue file changes on disk.
package notifier
