// ABOUTME: Outbound webhook dispatcher fanning bus events to configured endpoints
// ABOUTME: Delivery is fire-and-forget; failures are logged and never retried

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/config"
)

// WebhookDispatcher subscribes to the event bus and POSTs matching events to
// configured endpoints as JSON.
type WebhookDispatcher struct {
	cfg    config.WebhooksConfig
	bus    *bus.Bus
	client *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebhookDispatcher creates a dispatcher. It does nothing until Start.
func NewWebhookDispatcher(cfg config.WebhooksConfig, eventBus *bus.Bus, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		cfg:    cfg,
		bus:    eventBus,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "webhooks"),
	}
}

// Start begins consuming events. A dispatcher with no endpoints never
// subscribes at all.
func (d *WebhookDispatcher) Start(ctx context.Context) {
	if len(d.cfg.Endpoints) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)

	events, _ := d.bus.Subscribe(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				d.dispatch(ctx, ev)
			}
		}
	}()

	d.logger.Info("webhook dispatcher started", "endpoints", len(d.cfg.Endpoints))
}

// Stop cancels the consumer and waits for in-flight deliveries.
func (d *WebhookDispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *WebhookDispatcher) dispatch(ctx context.Context, ev bus.Event) {
	body, err := json.Marshal(wireEvent{Name: ev.Name, Payload: ev.Payload, Timestamp: ev.Timestamp})
	if err != nil {
		d.logger.Error("marshaling webhook payload", "event", ev.Name, "error", err)
		return
	}

	for _, ep := range d.cfg.Endpoints {
		if !endpointWants(ep, ev.Name) {
			continue
		}
		d.wg.Add(1)
		go func(ep config.WebhookEndpoint) {
			defer d.wg.Done()
			d.deliver(ctx, ep, ev.Name, body)
		}(ep)
	}
}

func (d *WebhookDispatcher) deliver(ctx context.Context, ep config.WebhookEndpoint, event string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("building webhook request", "url", ep.URL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Claw-Event", event)
	if ep.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed", "url", ep.URL, "event", event, "error", err)
		webhookDeliveries.WithLabelValues("error").Inc()
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook endpoint rejected event", "url", ep.URL, "event", event, "status", resp.StatusCode)
		webhookDeliveries.WithLabelValues("rejected").Inc()
		return
	}
	webhookDeliveries.WithLabelValues("ok").Inc()
}

func endpointWants(ep config.WebhookEndpoint, event string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, name := range ep.Events {
		if name == event {
			return true
		}
	}
	return false
}
