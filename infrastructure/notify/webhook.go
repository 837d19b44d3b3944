package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WebhookSink POSTs events as JSON to a fixed list of URLs from a background worker.
// A full queue drops the event; failed deliveries are logged and not retried.
type WebhookSink struct {
	urls   []string
	client *http.Client
	logger *zap.Logger
	queue  chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

// WebhookOptions configures NewWebhookSink.
type WebhookOptions struct {
	URLs      []string
	Timeout   time.Duration
	QueueSize int
}

func NewWebhookSink(opts WebhookOptions, logger *zap.Logger) *WebhookSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	urls := make([]string, 0, len(opts.URLs))
	for _, u := range opts.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	s := &WebhookSink{
		urls:   urls,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.Named("webhook"),
		queue:  make(chan Event, opts.QueueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *WebhookSink) Notify(_ context.Context, ev Event) {
	if len(s.urls) == 0 {
		return
	}
	defer func() {
		// Notify after Close must not panic the caller.
		if recover() != nil {
			s.logger.Warn("webhook sink closed; event dropped", zap.String("action", ev.Action))
		}
	}()
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("webhook queue full; event dropped",
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID))
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
func (s *WebhookSink) Close() {
	s.once.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *WebhookSink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		body, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal webhook event", zap.String("action", ev.Action), zap.Error(err))
			continue
		}
		for _, url := range s.urls {
			if err := s.post(url, body); err != nil {
				s.logger.Error("webhook delivery failed",
					zap.String("url", url),
					zap.String("action", ev.Action),
					zap.String("entity_id", ev.EntityID),
					zap.Error(err))
			}
		}
	}
}

func (s *WebhookSink) post(url string, body []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
