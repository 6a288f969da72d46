package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"upsmon/internal/ups"
	logx "upsmon/pkg/logx"
)

type EntryType string

const (
	EntryAlert       EntryType = "alert"
	EntryError       EntryType = "error"
	EntryDailyReport EntryType = "daily_report"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryAlert, EntryError, EntryDailyReport:
		return true
	}
	return false
}

// Entry is one pending notification.
type Entry struct {
	ID        string    `json:"id,omitempty"`
	Type      EntryType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON also accepts naive ISO-8601 timestamps.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string    `json:"id"`
		Type      EntryType `json:"type"`
		Message   string    `json:"message"`
		Timestamp string    `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("queue entry: unknown type %q", raw.Type)
	}
	out := Entry{ID: raw.ID, Type: raw.Type, Message: raw.Message}
	if raw.Timestamp != "" {
		ts, ok := ups.ParseTimestamp(raw.Timestamp)
		if !ok {
			return fmt.Errorf("queue entry: invalid timestamp %q", raw.Timestamp)
		}
		out.Timestamp = ts
	}
	*e = out
	return nil
}

const lockRetryDelay = 20 * time.Millisecond

// Queue is a file-backed mailbox shared by two processes.
//
// Every read-modify-write holds an exclusive flock on "<path>.lock" and
// replaces the file atomically, so Enqueue and DrainAll never interleave and a
// crash cannot leave a truncated array behind.
type Queue struct {
	path string
	log  logx.Logger
	now  func() time.Time

	// mu serializes callers inside this process; flock only arbitrates
	// between processes.
	mu   sync.Mutex
	lock *flock.Flock
}

type QueueOption func(*Queue)

// WithQueueClock overrides the clock used to stamp entries.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewQueue(path string, log logx.Logger, opts ...QueueOption) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	q := &Queue{
		path: path,
		log:  log,
		now:  time.Now,
		lock: flock.New(path + ".lock"),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) Path() string { return q.path }

// Enqueue appends e with a fresh timestamp (and an id when missing).
func (q *Queue) Enqueue(ctx context.Context, e Entry) (Entry, error) {
	if !e.Type.Valid() {
		return Entry{}, fmt.Errorf("enqueue: unknown entry type %q", e.Type)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Timestamp = q.now()

	err := q.withLock(ctx, func() error {
		entries, err := q.readLocked()
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return q.writeLocked(entries)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue %s: %w", e.Type, err)
	}
	q.log.Info("message queued", logx.String("type", string(e.Type)), logx.String("id", e.ID))
	return e, nil
}

// DrainAll returns every pending entry in insertion order and leaves an empty
// array behind. Read and reset happen under the same lock, so an Enqueue from
// the other process is either drained now or kept for the next call.
func (q *Queue) DrainAll(ctx context.Context) ([]Entry, error) {
	out := []Entry{}
	if _, err := os.Stat(q.path); errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	err := q.withLock(ctx, func() error {
		entries, err := q.readLocked()
		if err != nil || len(entries) == 0 {
			return err
		}
		if err := q.writeLocked(nil); err != nil {
			return err
		}
		out = entries
		return nil
	})
	if err != nil {
		return []Entry{}, fmt.Errorf("drain: %w", err)
	}
	return out, nil
}

// Requeue puts entries back at the head of the queue, ahead of anything
// enqueued since they were drained. Ids and timestamps are kept.
func (q *Queue) Requeue(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := q.withLock(ctx, func() error {
		pending, err := q.readLocked()
		if err != nil {
			return err
		}
		out := make([]Entry, 0, len(entries)+len(pending))
		out = append(out, entries...)
		out = append(out, pending...)
		return q.writeLocked(out)
	})
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	q.log.Info("messages requeued", logx.Int("count", len(entries)))
	return nil
}

// Peek returns the pending entries without removing them.
func (q *Queue) Peek(ctx context.Context) ([]Entry, error) {
	out := []Entry{}
	if _, err := os.Stat(q.path); errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	err := q.withLock(ctx, func() error {
		entries, err := q.readLocked()
		if len(entries) > 0 {
			out = entries
		}
		return err
	})
	return out, err
}

func (q *Queue) withLock(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	ok, err := q.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", q.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", q.lock.Path())
	}
	defer func() {
		if err := q.lock.Unlock(); err != nil {
			q.log.Warn("queue unlock failed", logx.Err(err))
		}
	}()
	return fn()
}

// readLocked loads the queue file. A missing or empty file is an empty queue.
// A file that is not a JSON array is moved aside so the queue is usable again;
// single elements that do not parse are logged and dropped.
func (q *Queue) readLocked() ([]Entry, error) {
	b, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", q.path, q.now().UnixNano())
		if rerr := os.Rename(q.path, aside); rerr != nil {
			q.log.Error("queue corrupt and could not be moved aside", logx.String("path", q.path), logx.Err(err), logx.Any("rename_err", rerr.Error()))
		} else {
			q.log.Error("queue corrupt; moved aside", logx.String("path", q.path), logx.String("aside", aside), logx.Err(err))
		}
		return nil, nil
	}
	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		var e Entry
		if err := json.Unmarshal(r, &e); err != nil || !e.Type.Valid() {
			if err == nil {
				err = fmt.Errorf("unknown type %q", e.Type)
			}
			q.log.Warn("queue entry skipped", logx.Int("index", i), logx.String("raw", string(r)), logx.Err(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (q *Queue) writeLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(q.path, b, 0o644)
}
