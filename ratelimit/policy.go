// Package ratelimit bounds how fast a single sender can push messages into
// the pipeline. The policy is advisory at the webhook edge: a throttled
// sender gets a 429 and nothing is enqueued or audited.
package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-concierge/core"
)

// ThrottledError reports a sender that exhausted its window.
type ThrottledError struct {
	Sender     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: sender %q throttled for %s",
		strings.TrimSpace(e.Sender),
		e.RetryAfter,
	)
}

// ToConciergeError maps the throttle into the pipeline's rich error shape.
func (e ThrottledError) ToConciergeError() *goerrors.Error {
	metadata := map[string]any{
		"sender": strings.TrimSpace(e.Sender),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ConciergeErrorRateLimited).
		WithMetadata(metadata)
}

type window struct {
	start time.Time
	count int
}

// Policy is a fixed-window per-sender limiter. Safe for concurrent use.
type Policy struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*window
}

type Option func(*Policy)

func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPolicy(limit int, windowSize time.Duration, options ...Option) (*Policy, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive")
	}
	policy := &Policy{
		limit:   limit,
		window:  windowSize,
		now:     func() time.Time { return time.Now().UTC() },
		buckets: map[string]*window{},
	}
	for _, option := range options {
		if option != nil {
			option(policy)
		}
	}
	return policy, nil
}

// Allow admits one message for the sender or returns a ThrottledError with
// the time until the window resets. Unknown senders are admitted and start
// a fresh window.
func (p *Policy) Allow(sender string) error {
	if p == nil {
		return nil
	}
	normalized := core.NormalizeSenderID(sender)
	if normalized == "" {
		return fmt.Errorf("ratelimit: sender identifier is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.prune(now)

	bucket, ok := p.buckets[normalized]
	if !ok || now.Sub(bucket.start) >= p.window {
		p.buckets[normalized] = &window{start: now, count: 1}
		return nil
	}
	if bucket.count >= p.limit {
		return ThrottledError{
			Sender:     normalized,
			RetryAfter: bucket.start.Add(p.window).Sub(now),
		}
	}
	bucket.count++
	return nil
}

// Remaining reports how many messages the sender may still push in the
// current window.
func (p *Policy) Remaining(sender string) int {
	if p == nil {
		return 0
	}
	normalized := core.NormalizeSenderID(sender)

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.buckets[normalized]
	if !ok || p.now().Sub(bucket.start) >= p.window {
		return p.limit
	}
	remaining := p.limit - bucket.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops expired windows. Called under the lock.
func (p *Policy) prune(now time.Time) {
	for sender, bucket := range p.buckets {
		if now.Sub(bucket.start) >= p.window {
			delete(p.buckets, sender)
		}
	}
}
