// Package jobs runs periodic housekeeping next to the request-driven engine.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"baletrack/config"
	"baletrack/infrastructure/sequence"
	"baletrack/infrastructure/sqlite"
)

const (
	JobAuditPurge     = "audit-retention-purge"
	JobSequencePrune  = "daily-sequence-prune"
	sequenceKeepDays  = 7
	sequencePruneTick = 24 * time.Hour
)

// AuditPurger deletes audit rows older than a cutoff.
type AuditPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler owns the gocron scheduler and its jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	db        *sqlite.DB
	audit     AuditPurger
	cfg       config.AuditConfig
	logger    *zap.Logger

	Now func() time.Time
}

// New registers the housekeeping jobs. The audit purge is skipped when retention is
// not positive or no purger is given.
func New(db *sqlite.DB, audit AuditPurger, cfg config.AuditConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{
		scheduler: scheduler,
		db:        db,
		audit:     audit,
		cfg:       cfg,
		logger:    logger.Named("jobs"),
		Now:       time.Now,
	}
	if err := s.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	if s.audit != nil && s.cfg.RetentionDays > 0 {
		interval := s.cfg.PurgeInterval
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		if _, err := s.scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.logged(JobAuditPurge, s.PurgeAudit), context.Background()),
			gocron.WithName(JobAuditPurge),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("register %s: %w", JobAuditPurge, err)
		}
	}

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(sequencePruneTick),
		gocron.NewTask(s.logged(JobSequencePrune, s.PruneSequences), context.Background()),
		gocron.WithName(JobSequencePrune),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("register %s: %w", JobSequencePrune, err)
	}

	s.logger.Info("registered background jobs", zap.Int("count", len(s.scheduler.Jobs())))
	return nil
}

// JobNames lists the registered job names.
func (s *Scheduler) JobNames() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.logger.Info("starting background job scheduler")
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	s.logger.Info("stopping background job scheduler")
	return s.scheduler.Shutdown()
}

// PurgeAudit removes audit rows older than the retention window.
func (s *Scheduler) PurgeAudit(ctx context.Context) (int64, error) {
	if s.audit == nil || s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	return s.audit.Purge(ctx, cutoff)
}

// PruneSequences drops daily id counters that can no longer be allocated from.
func (s *Scheduler) PruneSequences(ctx context.Context) (int64, error) {
	cutoff := s.Now().AddDate(0, 0, -sequenceKeepDays)
	var n int64
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		n, err = sequence.Prune(ctx, tx, cutoff)
		return err
	})
	return n, err
}

func (s *Scheduler) logged(name string, fn func(context.Context) (int64, error)) func(context.Context) {
	return func(ctx context.Context) {
		started := time.Now()
		n, err := fn(ctx)
		if err != nil {
			s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Info("job finished",
			zap.String("job", name),
			zap.Int64("rows", n),
			zap.Duration("took", time.Since(started)))
	}
}
