package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/conductor/internal/ctxlog"
)

// EmailChannel records who would have been mailed. Wiring a real SMTP relay
// is an operational concern left to deployment; the channel keeps the
// recipient list and subject visible in the logs.
type EmailChannel struct {
	Recipients []string
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Deliver implements Channel.
func (c *EmailChannel) Deliver(ctx context.Context, ev Event) error {
	if len(c.Recipients) == 0 {
		return nil
	}
	ctxlog.FromContext(ctx).Info("Email notification.",
		"recipients", len(c.Recipients),
		"subject", subjectFor(ev),
		"severity", ev.Severity,
		"component", ev.ComponentID,
	)
	return nil
}

// WebhookChannel posts events as JSON to a configured URL.
type WebhookChannel struct {
	URL    string
	Client *http.Client
}

// NewWebhookChannel returns a webhook channel with a bounded-timeout client.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return "webhook" }

// webhookPayload mirrors the attachment-style shape dashboards expect.
type webhookPayload struct {
	Text        string         `json:"text"`
	Attachments []webhookField `json:"attachments"`
}

type webhookField struct {
	Color     string         `json:"color"`
	Kind      string         `json:"kind"`
	Component string         `json:"component,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp int64          `json:"ts"`
}

// Deliver implements Channel.
func (c *WebhookChannel) Deliver(ctx context.Context, ev Event) error {
	color := "good"
	if ev.Severity != SeverityInfo {
		color = "danger"
	}
	payload := webhookPayload{
		Text: subjectFor(ev),
		Attachments: []webhookField{{
			Color:     color,
			Kind:      string(ev.Kind),
			Component: ev.ComponentID,
			Details:   ev.Payload,
			Timestamp: ev.Time.Unix(),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func subjectFor(ev Event) string {
	if ev.Message != "" {
		return ev.Message
	}
	if ev.ComponentID != "" {
		return fmt.Sprintf("%s: %s", ev.Kind, ev.ComponentID)
	}
	return string(ev.Kind)
}
