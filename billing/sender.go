package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// HTTPSender posts usage events as JSON to a billing webhook.
type HTTPSender struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPSender creates a Sender posting to url, authenticating with the
// given bearer token. An empty token disables the Authorization header.
func NewHTTPSender(url, token string) *HTTPSender {
	return &HTTPSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: defaultSendTimeout},
	}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, evt *UsageEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("billing: marshal usage event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("billing: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Billing dedupes on this if the POST is retried.
	req.Header.Set("Idempotency-Key", evt.EventID.String())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("billing: post usage event: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing useful to do on close failure

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("billing: webhook returned %d", resp.StatusCode)
	}
	return nil
}
