// Package slack posts messages to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"echodoc/internal/domain"
)

type Notifier struct {
	webhookURL string
	client     *http.Client
}

func New(webhookURL string, timeout time.Duration) (*Notifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("%w: slack webhook url is required", domain.ErrInvalidConfig)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{webhookURL: webhookURL, client: &http.Client{Timeout: timeout}}, nil
}

func (n *Notifier) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
	return nil
}
