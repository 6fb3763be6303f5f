package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimiterConfig defines per-owner throttling for the queue manager.
type LimiterConfig struct {
	// SubmitRate is the maximum sustained submissions per second per
	// owner. Zero disables submit rate limiting.
	SubmitRate float64

	// SubmitBurst is the token-bucket burst size. Defaults to 1 when
	// SubmitRate is set but SubmitBurst is zero.
	SubmitBurst int

	// MaxProcessing caps how many of an owner's jobs may be in the
	// processing state at once. Zero means no cap. The cap is checked
	// against store counts at dispatch time, so it holds across
	// processes.
	MaxProcessing int64
}

// Limiter applies per-owner submit rate limits and a processing
// concurrency cap. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	cfg    LimiterConfig
	owners map[string]*rate.Limiter
}

// NewLimiter creates a Limiter with the given configuration.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.SubmitRate > 0 && cfg.SubmitBurst <= 0 {
		cfg.SubmitBurst = 1
	}
	return &Limiter{
		cfg:    cfg,
		owners: make(map[string]*rate.Limiter),
	}
}

// AllowSubmit reports whether the owner may submit another job right now.
func (l *Limiter) AllowSubmit(owner string) bool {
	if l == nil || l.cfg.SubmitRate <= 0 {
		return true
	}

	l.mu.Lock()
	lim, ok := l.owners[owner]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.cfg.SubmitRate), l.cfg.SubmitBurst)
		l.owners[owner] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// AllowDispatch reports whether an owner with the given number of
// currently processing jobs may start another.
func (l *Limiter) AllowDispatch(processing int64) bool {
	if l == nil || l.cfg.MaxProcessing <= 0 {
		return true
	}
	return processing < l.cfg.MaxProcessing
}
