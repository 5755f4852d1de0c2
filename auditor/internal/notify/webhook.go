package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts a Message to Slack, Teams or a generic HTTP endpoint.
type Webhook struct {
	format string
	url    string
	client *http.Client
}

// NewWebhook returns a webhook sender. format is one of slack | teams | http;
// empty means http.
func NewWebhook(format, url string) *Webhook {
	if format == "" {
		format = "http"
	}
	return &Webhook{
		format: format,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook:" + w.format }

func (w *Webhook) Send(ctx context.Context, m Message) error {
	var err error
	switch w.format {
	case "slack":
		err = w.sendSlack(ctx, m)
	case "teams":
		err = w.sendTeams(ctx, m)
	case "http":
		err = w.sendHTTP(ctx, m)
	default:
		return fmt.Errorf("notify: webhook: unknown format %q", w.format)
	}
	if err != nil {
		return fmt.Errorf("notify: webhook %s: %w", w.format, err)
	}
	return nil
}

func (w *Webhook) sendSlack(ctx context.Context, m Message) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s\n%s\n\n%s", severityLabel(m.Severity), m.Subject, headline(m), m.Body),
	})
	return w.post(ctx, body)
}

func (w *Webhook) sendTeams(ctx context.Context, m Message) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(m.Severity),
		"summary":    m.Subject,
		"title":      fmt.Sprintf("Waste Escalation: %s", m.Subject),
		"text":       headline(m) + "\n\n" + m.Body,
	}
	body, _ := json.Marshal(payload)
	return w.post(ctx, body)
}

func (w *Webhook) sendHTTP(ctx context.Context, m Message) error {
	body, _ := json.Marshal(map[string]interface{}{"notification": m})
	return w.post(ctx, body)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// headline is the one-line context shown above the body in chat channels.
func headline(m Message) string {
	return fmt.Sprintf("%s at %s, cost $%.2f, causes: %s", m.Ingredient, m.Branch, m.Cost, m.Causes)
}
