// Package push implements component C3 (spec.md §4.8): fire-and-forget
// delivery of task events to registered webhook endpoints.
//
// Grounded on the teacher's httpclient.Client (runtime/a2a/httpclient/client.go):
// the same functional-options *http.Client wrapper and static-header
// pattern, generalized from a single JSON-RPC endpoint to per-task webhook
// fan-out, with outbound rate limiting via golang.org/x/time/rate.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"goa.design/a2a/pushconfig"
	"goa.design/a2a/telemetry"
	"goa.design/a2a/types"
)

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.http = c }
}

// WithRateLimit bounds outbound notification throughput to r events per
// second with a burst of b, shared across all tasks (spec.md §9: push
// delivery must not let one task's webhook starve another's admission into
// the bus; rate limiting here only throttles the outbound side).
func WithRateLimit(r rate.Limit, b int) Option {
	return func(s *Sender) { s.limiter = rate.NewLimiter(r, b) }
}

// WithLogger overrides the default clue-backed logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// Sender delivers task events to the webhooks registered in a
// pushconfig.Store. It implements eventbus.PushNotifier.
type Sender struct {
	configs pushconfig.Store
	http    *http.Client
	limiter *rate.Limiter
	logger  telemetry.Logger
}

// NewSender constructs a Sender reading webhook registrations from configs.
func NewSender(configs pushconfig.Store, opts ...Option) *Sender {
	s := &Sender{
		configs: configs,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  telemetry.NewClueLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// webhookPayload is the body POSTed to a registered URL.
type webhookPayload struct {
	TaskID string      `json:"taskId"`
	Event  types.Event `json:"event"`
}

// Notify delivers event to every webhook registered for task.ID. Failures
// are logged and never returned, matching the fire-and-forget contract of
// spec.md §4.8; a down endpoint must never slow or fail the pipeline.
func (s *Sender) Notify(ctx context.Context, task *types.Task, event types.Event) {
	if task == nil {
		return
	}
	configs, err := s.configs.List(ctx, task.ID)
	if err != nil || len(configs) == 0 {
		return
	}
	for _, cfg := range configs {
		s.deliver(ctx, cfg, task.ID, event)
	}
}

func (s *Sender) deliver(ctx context.Context, cfg *types.PushNotificationConfig, taskID string, event types.Event) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}

	body, err := json.Marshal(webhookPayload{TaskID: taskID, Event: event})
	if err != nil {
		s.logger.Warn(ctx, "failed to marshal push notification payload", "taskId", taskID, "err", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn(ctx, "failed to build push notification request", "taskId", taskID, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("X-A2A-Notification-Token", cfg.Token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn(ctx, "push notification delivery failed", "taskId", taskID, "url", cfg.URL, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn(ctx, "push notification endpoint returned error status",
			"taskId", taskID, "url", cfg.URL, "status", resp.StatusCode)
	}
}
