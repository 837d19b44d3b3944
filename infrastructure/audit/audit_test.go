package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite/sqlitetest"
)

func TestNotifyPersistsSnapshots(t *testing.T) {
	db := sqlitetest.Open(t)
	svc := NewService(db, nil)

	before := map[string]any{"status": "open"}
	after := map[string]any{"status": "closed"}
	svc.Notify(context.Background(), notify.Event{
		Action:     "batch.close",
		EntityType: "batch",
		EntityID:   "P-20250101-001",
		OldValue:   before,
		NewValue:   after,
		ActorID:    "op-7",
		OccurredAt: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	})

	entries, err := svc.List(context.Background(), "batch", "P-20250101-001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "batch.close", entries[0].Action)
	assert.Equal(t, "op-7", entries[0].ActorID)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(entries[0].After, &decoded))
	assert.Equal(t, "closed", decoded["status"])
}

func TestNotifyWithUnmarshalableValueIsSwallowed(t *testing.T) {
	db := sqlitetest.Open(t)
	svc := NewService(db, nil)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), notify.Event{Action: "item.create", EntityType: "item", EntityID: "x", NewValue: make(chan int)})
	})
	assert.Equal(t, 0, sqlitetest.Count(t, db, `SELECT COUNT(*) FROM audit_logs`))
}

func TestPurgeRemovesOldRows(t *testing.T) {
	db := sqlitetest.Open(t)
	svc := NewService(db, nil)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Write(context.Background(), notify.Event{Action: "a", EntityType: "item", EntityID: "1", OccurredAt: now.AddDate(0, 0, -100)}))
	require.NoError(t, svc.Write(context.Background(), notify.Event{Action: "b", EntityType: "item", EntityID: "1", OccurredAt: now.AddDate(0, 0, -1)}))

	n, err := svc.Purge(context.Background(), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := svc.List(context.Background(), "item", "1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Action)
}
