package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"baletrack/config"
	"baletrack/infrastructure/audit"
	"baletrack/infrastructure/cache"
	httpserver "baletrack/infrastructure/http"
	"baletrack/infrastructure/jobs"
	"baletrack/infrastructure/logger"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/production/batches"
	"baletrack/production/items"
	"baletrack/production/products"
	"baletrack/production/quads"
	"baletrack/production/stocktake"
)

// app is the fully wired service.
type app struct {
	logger     *zap.Logger
	db         *sqlite.DB
	jobs       *jobs.Scheduler
	server     *httpserver.Server
	closeSinks func()
	started    bool
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.With(zap.String("env", cfg.Server.AppEnv)), nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.OpenDB(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlite.ApplyMigrations(ctx, db, cfg.SQLite.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	auditSvc := audit.NewService(db, log)
	sink, closeSinks := buildSinks(ctx, cfg, auditSvc, log)
	loc := cfg.Server.Location()

	productSvc := products.NewService(db, cache.NewProductCache(), sink, log)
	itemSvc := items.NewService(db, productSvc, auditSvc, sink, log, loc)
	services := httpserver.Services{
		Products:  productSvc,
		Items:     itemSvc,
		Batches:   batches.NewService(db, itemSvc, sink, log, loc),
		Quads:     quads.NewService(db, sink, log, loc),
		Stocktake: stocktake.NewService(db, sink, log),
	}

	scheduler, err := jobs.New(db, auditSvc, cfg.Audit, log)
	if err != nil {
		closeSinks()
		_ = db.Close()
		return nil, err
	}

	return &app{
		logger:     log,
		db:         db,
		jobs:       scheduler,
		server:     httpserver.NewServer(cfg.Server.Addr, db, services, log),
		closeSinks: closeSinks,
	}, nil
}

// buildSinks assembles the notification fan-out: the audit trail always, webhook
// and redis delivery when configured. The returned func drains and closes them.
func buildSinks(ctx context.Context, cfg *config.Config, auditSvc *audit.Service, log *zap.Logger) (notify.Sink, func()) {
	sinks := []notify.Sink{auditSvc}
	closers := make([]func(), 0, 2)

	if len(cfg.Webhook.URLs) > 0 {
		webhook := notify.NewWebhookSink(notify.WebhookOptions{
			URLs:      cfg.Webhook.URLs,
			Timeout:   cfg.Webhook.Timeout,
			QueueSize: cfg.Webhook.QueueSize,
		}, log)
		sinks = append(sinks, webhook)
		closers = append(closers, webhook.Close)
	}

	if cfg.Redis.Addr != "" {
		redisSink := notify.NewRedisSink(notify.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Channel:   cfg.Redis.Channel,
			QueueSize: cfg.Redis.QueueSize,
		}, log)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisSink.Ping(pingCtx); err != nil {
			log.Warn("redis unreachable; events will be dropped until it recovers",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		sinks = append(sinks, redisSink)
		closers = append(closers, redisSink.Close)
	}

	return notify.Fanout(sinks...), func() {
		for _, c := range closers {
			c()
		}
	}
}

// Start runs the scheduler and the HTTP listener.
func (a *app) Start() error {
	a.jobs.Start()
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	a.started = true
	a.logger.Info("baletrack listening", zap.String("addr", a.server.ListenAddr()))
	return nil
}

// Close stops the listener first so no new events are produced, then drains sinks.
func (a *app) Close() {
	if a.started {
		if err := a.server.Stop(); err != nil {
			a.logger.Error("graceful shutdown error", zap.Error(err))
		}
		a.started = false
	}
	if err := a.jobs.Stop(); err != nil {
		a.logger.Error("stop scheduler", zap.Error(err))
	}
	a.closeSinks()
	if err := a.db.Close(); err != nil {
		a.logger.Error("close db", zap.Error(err))
	}
	_ = a.logger.Sync()
}
