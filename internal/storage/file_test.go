package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAuditDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		a, err := OpenAudit(AuditConfig{Driver: d}, zeroLog())
		require.NoError(t, err)
		assert.Nil(t, a)
	}
	_, err := OpenAudit(AuditConfig{Driver: "mongo"}, zeroLog())
	assert.Error(t, err)
}

func TestFileAuditAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "deliveries.jsonl")
	a, err := OpenAudit(AuditConfig{Driver: "file", Path: path}, zeroLog())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.AppendDelivery(ctx, DeliveryRecord{EntryID: "a", Type: EntryAlert, OK: true, Attempts: 1}))
	require.NoError(t, a.AppendDelivery(ctx, DeliveryRecord{EntryID: "b", Type: EntryError, Attempts: 3, Error: "timeout"}))
	require.NoError(t, a.Close())
	assert.Error(t, a.AppendDelivery(ctx, DeliveryRecord{EntryID: "c"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []DeliveryRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r DeliveryRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.Len(t, recs, 2)
	assert.True(t, recs[0].OK)
	assert.False(t, recs[0].At.IsZero())
	assert.Equal(t, "timeout", recs[1].Error)
	assert.Equal(t, 3, recs[1].Attempts)
}

func TestFileAuditRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := OpenAudit(AuditConfig{Driver: "file"}, zeroLog())
	assert.Error(t, err)
}
