package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sandai/arena/src/domain/notification"
)

// WebhookDispatcher posts event batches as JSON to a single endpoint.
type WebhookDispatcher struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
}

func NewWebhookDispatcher(url, secret string) *WebhookDispatcher {
	return &WebhookDispatcher{
		URL:    url,
		Secret: secret,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom HTTP client.
func (d *WebhookDispatcher) WithHTTPClient(client *http.Client) *WebhookDispatcher {
	d.HTTPClient = client
	return d
}

type webhookBatch struct {
	Events []*notification.Event `json:"events"`
	SentAt time.Time             `json:"sent_at"`
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, events []*notification.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	body, err := json.Marshal(webhookBatch{Events: events, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+d.Secret)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: webhook answered %d", notification.ErrDispatchFailed, resp.StatusCode)
	}
	return nil
}
