package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Alerter delivers staleness notifications to a configured webhook. An empty
// URL disables delivery. Delivery failure is never fatal to the gateway.
type Alerter struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewAlerter creates an alerter posting to the given webhook URL
func NewAlerter(webhookURL string, timeout time.Duration, logger *zap.Logger) *Alerter {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send posts a text alert to the webhook using the bot message format the
// operations channel expects
func (a *Alerter) Send(ctx context.Context, content string) error {
	if a.webhookURL == "" {
		a.logger.Warn("Alert webhook not configured, dropping alert",
			zap.String("content", content))
		return nil
	}

	payload := map[string]any{
		"msgtype": "text",
		"text": map[string]string{
			"content": content,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	a.logger.Info("Staleness alert delivered")
	return nil
}
