package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"openclaw/hub/pkg/storage"
)

const (
	webhookQueueSize = 100
	webhookTimeout   = 10 * time.Second
)

// WebhookChannel POSTs each alert as JSON to a configured URL. Delivery
// is asynchronous behind a bounded queue; when the queue is full the
// oldest pending alert is dropped so a dead endpoint cannot back-pressure
// the monitor loop.
type WebhookChannel struct {
	url    string
	client *http.Client
	logger *slog.Logger

	queue chan *storage.Alert
	once  sync.Once
	done  chan struct{}
}

// NewWebhookChannel creates the channel and starts its delivery worker.
func NewWebhookChannel(url string, logger *slog.Logger) *WebhookChannel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
		queue:  make(chan *storage.Alert, webhookQueueSize),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return "webhook" }

// Notify enqueues the alert for delivery. Never blocks: on a full queue
// the oldest entry is discarded.
func (c *WebhookChannel) Notify(ctx context.Context, alert *storage.Alert) error {
	for {
		select {
		case c.queue <- alert:
			return nil
		default:
		}
		select {
		case dropped := <-c.queue:
			c.logger.Warn("Webhook queue full, dropping oldest alert",
				"dropped_alert_id", dropped.ID)
		default:
		}
	}
}

// Close stops the delivery worker after draining nothing further.
func (c *WebhookChannel) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *WebhookChannel) run() {
	for {
		select {
		case <-c.done:
			return
		case alert := <-c.queue:
			if err := c.deliver(alert); err != nil {
				c.logger.Warn("Webhook delivery failed",
					"alert_id", alert.ID,
					"url", c.url,
					"error", err,
				)
			}
		}
	}
}

func (c *WebhookChannel) deliver(alert *storage.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
