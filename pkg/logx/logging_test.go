package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "poller"))

	log.Debug("hidden")
	log.Warn("poll failed", Err(errors.New("timeout")), Int("fields", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "poll failed", rec["message"])
	assert.Equal(t, "poller", rec["comp"])
	errVal, ok := rec["err"]
	if !ok {
		errVal = rec["error"]
	}
	assert.Equal(t, "timeout", errVal)
	assert.EqualValues(t, 3, rec["fields"])
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("no panic")

	assert.False(t, Nop().IsZero())
	Nop().Error("discarded", String("k", "v"))
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notifier.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})

	log.With(String("comp", "queue")).Info("drained", Int("count", 2))
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"comp":"queue"`)
	assert.Contains(t, string(b), `"count":2`)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "debug", parseLevel("trace", 0).String())
	assert.Equal(t, "warn", parseLevel(" WARNING ", 0).String())
	assert.Equal(t, "info", parseLevel("bogus", parseLevel("info", 0)).String())
}
