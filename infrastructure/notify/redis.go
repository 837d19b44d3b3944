package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink publishes events as JSON on a pub/sub channel from a background worker.
// A full queue drops the event; failed publishes are logged and not retried.
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
	queue   chan Event
	wg      sync.WaitGroup
	once    sync.Once
}

// RedisOptions configures NewRedisSink.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Channel   string
	Timeout   time.Duration
	QueueSize int
}

func NewRedisSink(opts RedisOptions, logger *zap.Logger) *RedisSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := strings.TrimPrefix(strings.TrimPrefix(opts.Addr, "redis://"), "rediss://")
	if opts.Channel == "" {
		opts.Channel = "baletrack:events"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	s := &RedisSink{
		client:  client,
		channel: opts.Channel,
		timeout: opts.Timeout,
		logger:  logger.Named("redis"),
		queue:   make(chan Event, opts.QueueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Notify enqueues ev without waiting on the network.
func (s *RedisSink) Notify(_ context.Context, ev Event) {
	defer func() {
		if recover() != nil {
			s.logger.Warn("redis sink closed; event dropped", zap.String("action", ev.Action))
		}
	}()
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("redis queue full; event dropped",
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID))
	}
}

// Ping reports whether the redis server is reachable.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close stops accepting events, publishes what is queued, then closes the client.
func (s *RedisSink) Close() {
	s.once.Do(func() {
		close(s.queue)
		s.wg.Wait()
		if err := s.client.Close(); err != nil {
			s.logger.Warn("close redis client", zap.Error(err))
		}
	})
}

func (s *RedisSink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal event", zap.String("action", ev.Action), zap.Error(err))
			continue
		}
		if err := s.publish(payload); err != nil {
			s.logger.Error("publish event failed",
				zap.String("channel", s.channel),
				zap.String("action", ev.Action),
				zap.Error(err))
		}
	}
}

func (s *RedisSink) publish(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Publish(ctx, s.channel, payload).Err()
}
