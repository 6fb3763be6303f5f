// Package httpsig delivers dispatch signals as HTTP POSTs to the worker
// service. The worker is expected to return 202 Accepted and fetch the
// batch asynchronously; the request never waits on lookup work.
package httpsig

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mailscout/bulkq/signal"
)

const defaultTimeout = 6500 * time.Millisecond

var _ signal.Signaler = (*Signaler)(nil)

// Signaler POSTs signal envelopes to {base}/v1/jobs/{kind}.
type Signaler struct {
	base     string
	username string
	password string
	client   *http.Client
	codec    signal.Codec
}

// Option configures the Signaler.
type Option func(*Signaler)

// WithHTTPClient overrides the HTTP client (timeouts, transport).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Signaler) { s.client = c }
}

// WithCodec selects the envelope encoding. Defaults to JSON.
func WithCodec(c signal.Codec) Option {
	return func(s *Signaler) { s.codec = c }
}

// New creates an HTTP Signaler for the worker at base, authenticating with
// basic auth.
func New(base, username, password string, opts ...Option) *Signaler {
	s := &Signaler{
		base:     base,
		username: username,
		password: password,
		client:   &http.Client{Timeout: defaultTimeout},
		codec:    signal.GetCodec(signal.CodecNameJSON),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify POSTs the envelope to the worker's endpoint for the job's kind.
// Any 2xx response counts as delivered.
func (s *Signaler) Notify(ctx context.Context, env *signal.Envelope) error {
	if env.SignaledAt.IsZero() {
		env.SignaledAt = time.Now().UTC()
	}
	data, err := s.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("bulkq/httpsig: encode envelope: %w", err)
	}

	url := fmt.Sprintf("%s/v1/jobs/%s", s.base, env.Kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("bulkq/httpsig: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType(s.codec))
	req.SetBasicAuth(s.username, s.password)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("bulkq/httpsig: signal job %s: %w", env.JobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bulkq/httpsig: signal job %s: worker returned %d", env.JobID, resp.StatusCode)
	}
	return nil
}

func contentType(c signal.Codec) string {
	if c.Name() == signal.CodecNameMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}
