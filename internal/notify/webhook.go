package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookSink posts notification payloads to a configured webhook endpoint
// (Teams incoming webhook or any compatible receiver).
type WebhookSink struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

// NewWebhookSink creates a webhook-backed notification sink.
func NewWebhookSink(url string, timeout time.Duration, logger *logrus.Logger) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Dispatch posts the payload as JSON. The channel name is forwarded so one
// endpoint can fan out to multiple destinations.
func (s *WebhookSink) Dispatch(ctx context.Context, channel string, payload Payload) (Result, error) {
	body, err := json.Marshal(map[string]interface{}{
		"channel": channel,
		"payload": payload,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("webhook dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	reference := resp.Header.Get("X-Reference-Id")
	s.logger.WithFields(logrus.Fields{
		"channel":  channel,
		"alert_id": payload.AlertID,
	}).Debug("Notification dispatched")

	return Result{Success: true, ReferenceID: reference}, nil
}

// LogSink writes notifications to the application log. Used when no webhook
// endpoint is configured.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a log-backed notification sink.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Dispatch(_ context.Context, channel string, payload Payload) (Result, error) {
	s.logger.WithFields(logrus.Fields{
		"channel":  channel,
		"alert_id": payload.AlertID,
		"severity": payload.Severity,
		"level":    payload.Level,
		"action":   payload.Action,
	}).Warn("Notification: " + payload.Message)
	return Result{Success: true}, nil
}
