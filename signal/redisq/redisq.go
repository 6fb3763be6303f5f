// Package redisq delivers dispatch signals over a Redis list per job kind.
// The worker BRPOPs its kind's list; duplicate envelopes for one job are
// expected and harmless, which makes this a valid at-least-once channel.
package redisq

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mailscout/bulkq/signal"
)

// Redis key naming: all keys are prefixed to avoid collisions.
// signalKey returns the list key for a kind: bulkq:signal:{kind}
const defaultKeyPrefix = "bulkq:"

// Envelope aliases the signal envelope to keep call sites short.
type Envelope = signal.Envelope

var _ signal.Signaler = (*Signaler)(nil)

// Signaler pushes signal envelopes onto per-kind Redis lists.
type Signaler struct {
	client    *goredis.Client
	codec     signal.Codec
	keyPrefix string
}

// Option configures the Signaler.
type Option func(*Signaler)

// WithCodec selects the envelope encoding. Defaults to JSON.
func WithCodec(c signal.Codec) Option {
	return func(s *Signaler) { s.codec = c }
}

// WithKeyPrefix overrides the Redis key prefix. Defaults to "bulkq:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Signaler) { s.keyPrefix = prefix }
}

// New creates a Redis-backed Signaler. The caller owns the client lifecycle.
func New(client *goredis.Client, opts ...Option) *Signaler {
	s := &Signaler{
		client:    client,
		codec:     signal.GetCodec(signal.CodecNameJSON),
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify pushes the envelope onto the kind's signal list.
func (s *Signaler) Notify(ctx context.Context, env *Envelope) error {
	if env.SignaledAt.IsZero() {
		env.SignaledAt = time.Now().UTC()
	}
	data, err := s.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("bulkq/redisq: encode envelope: %w", err)
	}
	if err := s.client.LPush(ctx, s.signalKey(string(env.Kind)), data).Err(); err != nil {
		return fmt.Errorf("bulkq/redisq: push signal for job %s: %w", env.JobID, err)
	}
	return nil
}

func (s *Signaler) signalKey(kind string) string {
	return s.keyPrefix + "signal:" + kind
}
