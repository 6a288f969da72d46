package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "upsmon/pkg/logx"
)

func zeroLog() logx.Logger { return logx.NewWriter(&bytes.Buffer{}, "debug") }

func TestQueueEnqueueDrainOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "message_queue.json")
	t0 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	q := NewQueue(path, zeroLog(), WithQueueClock(fixedClock(t0)))

	e1, err := q.Enqueue(ctx, Entry{Type: EntryAlert, Message: "first"})
	require.NoError(t, err)
	assert.NotEmpty(t, e1.ID)
	assert.True(t, e1.Timestamp.Equal(t0))
	_, err = q.Enqueue(ctx, Entry{Type: EntryDailyReport, Message: "second"})
	require.NoError(t, err)

	peek, err := q.Peek(ctx)
	require.NoError(t, err)
	assert.Len(t, peek, 2)

	got, err := q.DrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, EntryAlert, got[0].Type)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, EntryDailyReport, got[1].Type)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(b))

	got, err = q.DrainAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueueDrainMissingFile(t *testing.T) {
	t.Parallel()
	q := NewQueue(filepath.Join(t.TempDir(), "message_queue.json"), zeroLog())
	got, err := q.DrainAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueueRejectsUnknownType(t *testing.T) {
	t.Parallel()
	q := NewQueue(filepath.Join(t.TempDir(), "message_queue.json"), zeroLog())
	_, err := q.Enqueue(context.Background(), Entry{Type: "bogus", Message: "x"})
	assert.Error(t, err)
}

func TestQueueCorruptFileMovedAside(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "message_queue.json")
	require.NoError(t, os.WriteFile(path, []byte("[{\"type\":"), 0o644))

	q := NewQueue(path, zeroLog())
	got, err := q.DrainAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = q.Enqueue(ctx, Entry{Type: EntryError, Message: "after"})
	require.NoError(t, err)
	got, err = q.DrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "after", got[0].Message)
}

func TestQueueSkipsBadElementsKeepsRest(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "message_queue.json")
	doc := `[
  {"type":"alert","message":"keep me"},
  {"type":"warning","message":"unknown type"},
  {"type":"error","message":"bad time","timestamp":"yesterday"},
  {"type":"daily_report","message":"keep me too"}
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := NewQueue(path, zeroLog()).DrainAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "keep me", got[0].Message)
	assert.Equal(t, "keep me too", got[1].Message)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches, "a readable array is not moved aside")
}

func TestQueueRequeuePutsEntriesFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(filepath.Join(t.TempDir(), "message_queue.json"), zeroLog())

	_, err := q.Enqueue(ctx, Entry{Type: EntryAlert, Message: "old-1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Entry{Type: EntryAlert, Message: "old-2"})
	require.NoError(t, err)
	drained, err := q.DrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, drained, 2)

	_, err = q.Enqueue(ctx, Entry{Type: EntryError, Message: "newer"})
	require.NoError(t, err)
	require.NoError(t, q.Requeue(ctx, drained))
	require.NoError(t, q.Requeue(ctx, nil))

	got, err := q.DrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "old-1", got[0].Message)
	assert.Equal(t, drained[0].ID, got[0].ID)
	assert.True(t, drained[0].Timestamp.Equal(got[0].Timestamp))
	assert.Equal(t, "old-2", got[1].Message)
	assert.Equal(t, "newer", got[2].Message)
}

func TestQueueReadsNaiveTimestamps(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "message_queue.json")
	doc := `[{"type":"alert","message":"hi","timestamp":"2024-05-01T12:30:00.123456"}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := NewQueue(path, zeroLog()).DrainAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2024, got[0].Timestamp.Year())
	assert.Equal(t, 30, got[0].Timestamp.Minute())
}

func TestQueueConcurrentProducersAndDrainer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "message_queue.json")
	// Two handles on one path behave like two processes.
	producer := NewQueue(path, zeroLog())
	drainer := NewQueue(path, zeroLog())

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := producer.Enqueue(ctx, Entry{Type: EntryAlert, Message: "m"})
			assert.NoError(t, err)
		}()
	}

	seen := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		got, err := drainer.DrainAll(ctx)
		require.NoError(t, err)
		seen += len(got)
		select {
		case <-done:
			got, err := drainer.DrainAll(ctx)
			require.NoError(t, err)
			seen += len(got)
			assert.Equal(t, n, seen)
			return
		default:
		}
	}
}
