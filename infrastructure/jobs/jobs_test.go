package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"baletrack/config"
	"baletrack/infrastructure/audit"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sequence"
	"baletrack/infrastructure/sqlite/sqlitetest"
)

var now = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

func TestRegistersJobsFromConfig(t *testing.T) {
	db := sqlitetest.Open(t)

	s, err := New(db, audit.NewService(db, nil), config.AuditConfig{RetentionDays: 30, PurgeInterval: time.Hour}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{JobAuditPurge, JobSequencePrune}, s.JobNames())
	s.Start()
	require.NoError(t, s.Stop())

	s, err = New(db, audit.NewService(db, nil), config.AuditConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{JobSequencePrune}, s.JobNames())
	s.Start()
	require.NoError(t, s.Stop())
}

func TestPurgeAuditHonorsRetention(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	auditSvc := audit.NewService(db, nil)
	require.NoError(t, auditSvc.Write(ctx, notify.Event{Action: "item.create", EntityType: "item", EntityID: "old", OccurredAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, auditSvc.Write(ctx, notify.Event{Action: "item.create", EntityType: "item", EntityID: "new", OccurredAt: now.AddDate(0, 0, -1)}))

	s, err := New(db, auditSvc, config.AuditConfig{RetentionDays: 30}, nil)
	require.NoError(t, err)
	s.Now = func() time.Time { return now }
	s.Start()
	defer s.Stop()

	n, err := s.PurgeAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, sqlitetest.Count(t, db, `SELECT COUNT(*) FROM audit_logs`))

	s.cfg.RetentionDays = 0
	n, err = s.PurgeAudit(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneSequencesKeepsRecentDays(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	for _, day := range []time.Time{now.AddDate(0, 0, -30), now.AddDate(0, 0, -1), now} {
		require.NoError(t, db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
			_, err := sequence.Next(ctx, tx, sequence.ScopeBatch, day)
			return err
		}))
	}

	s, err := New(db, nil, config.AuditConfig{}, nil)
	require.NoError(t, err)
	s.Now = func() time.Time { return now }
	s.Start()
	defer s.Stop()

	n, err := s.PruneSequences(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, sqlitetest.Count(t, db, `SELECT COUNT(*) FROM daily_sequences`))
}
