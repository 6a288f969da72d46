package notifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsmon/internal/report"
	"upsmon/internal/storage"
	kit "upsmon/internal/transport"
	"upsmon/internal/transport/telegram/router"
	logx "upsmon/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
	opt  kit.SendOptions
}

type fakeSender struct {
	mu sync.Mutex
	// failures maps message text to the number of attempts that fail.
	failures map[string]int
	attempts map[string]int
	sent     []sent
	notify   chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: map[string]int{}, attempts: map[string]int{}, notify: make(chan struct{}, 64)}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[text]++
	if f.attempts[text] <= f.failures[text] {
		return kit.MessageRef{}, errors.New("telegram: 502 bad gateway")
	}
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	f.sent = append(f.sent, sent{to: to, text: text, opt: o})
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type memAudit struct {
	mu   sync.Mutex
	recs []storage.DeliveryRecord
}

func (a *memAudit) AppendDelivery(ctx context.Context, r storage.DeliveryRecord) error {
	a.mu.Lock()
	a.recs = append(a.recs, r)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) Close() error { return nil }

var target = kit.ChatTarget{ChatID: -100123, ThreadID: 7}

func fastConfig() Config {
	return Config{
		Target:          target,
		RatePerSec:      1000,
		RetryMax:        2,
		RetryBase:       time.Millisecond,
		RetryMaxDelay:   2 * time.Millisecond,
		CheckInterval:   20 * time.Millisecond,
		FirstCheckAfter: 10 * time.Millisecond,
	}
}

func newQueue(t *testing.T) *storage.Queue {
	t.Helper()
	return storage.NewQueue(filepath.Join(t.TempDir(), "message_queue.json"), logx.Nop())
}

func enqueue(t *testing.T, q *storage.Queue, typ storage.EntryType, msg string) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), storage.Entry{Type: typ, Message: msg})
	require.NoError(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	_, err := New(Config{}, q, newFakeSender(), logx.Nop())
	assert.Error(t, err)
	_, err = New(fastConfig(), nil, newFakeSender(), logx.Nop())
	assert.Error(t, err)

	s, err := New(Config{Target: target}, q, newFakeSender(), logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, "Markdown", s.cfg.ParseMode)
	assert.Equal(t, 5*time.Second, s.cfg.FirstCheckAfter)
	assert.Equal(t, 5*time.Second, s.cfg.CheckInterval)
	assert.Equal(t, q.Path(), s.watchPath)
}

func TestDrainOnceDeliversInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newQueue(t)
	snd := newFakeSender()
	audit := &memAudit{}
	s, err := New(fastConfig(), q, snd, logx.Nop(), WithAudit(audit))
	require.NoError(t, err)

	res, err := s.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	enqueue(t, q, storage.EntryError, "one")
	enqueue(t, q, storage.EntryAlert, "two")
	enqueue(t, q, storage.EntryDailyReport, "three")

	res, err = s.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 3}, res)
	assert.Equal(t, []string{"one", "two", "three"}, snd.texts())
	assert.Equal(t, target, snd.sent[0].to)
	assert.Equal(t, "Markdown", snd.sent[0].opt.ParseMode)

	left, err := q.Peek(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	require.Len(t, audit.recs, 3)
	assert.True(t, audit.recs[1].OK)
	assert.Equal(t, storage.EntryAlert, audit.recs[1].Type)
	assert.Equal(t, 1, audit.recs[1].Attempts)
	assert.NotEmpty(t, audit.recs[1].EntryID)
}

func TestDrainOnceRetriesThenDropsWithoutRequeue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newQueue(t)
	snd := newFakeSender()
	snd.failures["flaky"] = 2
	snd.failures["dead"] = 100
	audit := &memAudit{}
	s, err := New(fastConfig(), q, snd, logx.Nop(), WithAudit(audit))
	require.NoError(t, err)

	enqueue(t, q, storage.EntryAlert, "dead")
	enqueue(t, q, storage.EntryAlert, "flaky")
	enqueue(t, q, storage.EntryAlert, "fine")

	res, err := s.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 2, Failed: 1}, res)
	assert.Equal(t, []string{"flaky", "fine"}, snd.texts())
	assert.Equal(t, 3, snd.attempts["dead"], "first attempt plus RetryMax")
	assert.Equal(t, 3, snd.attempts["flaky"])

	left, err := q.Peek(ctx)
	require.NoError(t, err)
	assert.Empty(t, left, "failed entries are not re-enqueued")

	require.Len(t, audit.recs, 3)
	assert.False(t, audit.recs[0].OK)
	assert.Contains(t, audit.recs[0].Error, "bad gateway")
	assert.Equal(t, 3, audit.recs[0].Attempts)
}

func TestDeliverRetriesOnlyTheFailedChunk(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	snd := newFakeSender()
	head := strings.Repeat("a", 3000)
	tail := strings.Repeat("b", 3000)
	snd.failures[tail] = 1
	s, err := New(fastConfig(), q, snd, logx.Nop())
	require.NoError(t, err)

	enqueue(t, q, storage.EntryDailyReport, head+"\n"+tail)

	res, err := s.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 1}, res)
	assert.Equal(t, []string{head, tail}, snd.texts())
	assert.Equal(t, 1, snd.attempts[head])
	assert.Equal(t, 2, snd.attempts[tail])
}

func TestDrainOnceFinishesBatchAfterCancel(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	snd := newFakeSender()
	cfg := fastConfig()
	cfg.RatePerSec = 20 // 3 entries take ~100ms, well past the deadline
	cfg.ShutdownGrace = 5 * time.Second
	s, err := New(cfg, q, snd, logx.Nop())
	require.NoError(t, err)

	enqueue(t, q, storage.EntryAlert, "a")
	enqueue(t, q, storage.EntryAlert, "b")
	enqueue(t, q, storage.EntryAlert, "c")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := s.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 3}, res)
	assert.Equal(t, []string{"a", "b", "c"}, snd.texts())
}

func TestDrainOnceRequeuesWhatGraceCannotCover(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	snd := newFakeSender()
	audit := &memAudit{}
	cfg := fastConfig()
	cfg.RatePerSec = 0.001 // second token is ~17 minutes away
	cfg.ShutdownGrace = 50 * time.Millisecond
	s, err := New(cfg, q, snd, logx.Nop(), WithAudit(audit))
	require.NoError(t, err)

	enqueue(t, q, storage.EntryAlert, "a")
	enqueue(t, q, storage.EntryAlert, "b")
	enqueue(t, q, storage.EntryError, "c")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := s.DrainOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, Result{Delivered: 1, Requeued: 2}, res)
	assert.Equal(t, []string{"a"}, snd.texts())
	require.Len(t, audit.recs, 1, "requeued entries are not audited as failures")

	enqueue(t, q, storage.EntryAlert, "d")
	left, err := q.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 3)
	assert.Equal(t, "b", left[0].Message)
	assert.Equal(t, "c", left[1].Message)
	assert.Equal(t, "d", left[2].Message)
}

func TestDrainOnceRequeuesSendCutOffByGrace(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	snd := &blockingSender{started: make(chan struct{})}
	cfg := fastConfig()
	cfg.ShutdownGrace = 20 * time.Millisecond
	s, err := New(cfg, q, snd, logx.Nop())
	require.NoError(t, err)

	enqueue(t, q, storage.EntryAlert, "stuck")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-snd.started
		cancel()
	}()
	res, err := s.DrainOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, Result{Requeued: 1}, res)

	left, err := q.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "stuck", left[0].Message)
}

// blockingSender never completes a send until its context ends.
type blockingSender struct {
	once    sync.Once
	started chan struct{}
}

func (b *blockingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return kit.MessageRef{}, ctx.Err()
}

func TestRunDrainsOnIntervalAndStops(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	snd := newFakeSender()
	s, err := New(fastConfig(), q, snd, logx.Nop())
	require.NoError(t, err)

	enqueue(t, q, storage.EntryAlert, "queued before start")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-snd.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("nothing delivered")
	}
	enqueue(t, q, storage.EntryAlert, "queued later")
	require.Eventually(t, func() bool { return len(snd.texts()) == 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunWatchTriggersEarlyDrain(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	snd := newFakeSender()
	cfg := fastConfig()
	cfg.FirstCheckAfter = time.Hour
	cfg.CheckInterval = time.Hour
	cfg.Watch = true
	cfg.WatchDebounce = 20 * time.Millisecond
	s, err := New(cfg, q, snd, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	// Keep writing until the watcher is up and notices.
	require.Eventually(t, func() bool {
		if len(snd.texts()) > 0 {
			return true
		}
		_, _ = q.Enqueue(context.Background(), storage.Entry{Type: storage.EntryAlert, Message: "watched"})
		return false
	}, 5*time.Second, 100*time.Millisecond)
}

func TestWatchFileIgnoresOtherFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "message_queue.json")
	out := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watchFile(ctx, path, 10*time.Millisecond, out, logx.Nop()) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("[]"), 0o644))
		select {
		case <-out:
			t.Fatal("unrelated file triggered a drain")
		case <-time.After(30 * time.Millisecond):
		}
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
		select {
		case <-out:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatal("queue file write never triggered")
}

func TestCommands(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "ups_state.json")
	snd := newFakeSender()
	m := router.NewCommandManager(router.Config{AllowedChats: []int64{target.ChatID}}, snd, logx.Nop())
	m.SetRegistry(context.Background(), Commands(statePath))

	send := func(text string) string {
		n := len(snd.texts())
		m.Dispatch(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: target.ChatID, Text: text}})
		got := snd.texts()
		require.Len(t, got, n+1, "reply to %s", text)
		return got[n]
	}

	assert.Equal(t, report.StartText, send("/start"))
	assert.Equal(t, report.HelpText, send("/help@ups_bot"))
	assert.Equal(t, report.NoDataText, send("/status"))

	require.NoError(t, os.WriteFile(statePath, []byte(`{"status":"5","last_update":"2025-06-01T09:00:00"}`), 0o644))
	reply := send("/status")
	assert.Contains(t, reply, "📊 *General Status:* On Battery")
	assert.Contains(t, reply, "🕐 *Last update:* 2025-06-01 09:00:00")

	require.NoError(t, os.WriteFile(statePath, []byte(`{not json`), 0o644))
	assert.Contains(t, send("/status"), "❌ Error reading status:")

	snd.mu.Lock()
	assert.Equal(t, "Markdown", snd.sent[0].opt.ParseMode)
	snd.mu.Unlock()
}
