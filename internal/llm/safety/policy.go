// Package safety limits how often a requester may spend a generation call.
package safety

import (
	"strings"
	"sync"
	"time"
)

type Config struct {
	// RateLimitPerWindow of zero disables limiting.
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	ExemptRequesters   []string
	RateLimitMessage   string
}

type Decision struct {
	Allowed    bool
	Notify     string
	Reason     string
	RetryAfter time.Duration
}

type Policy struct {
	cfg    Config
	exempt map[string]struct{}
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string][]time.Time
}

func New(cfg Config) *Policy {
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if strings.TrimSpace(cfg.RateLimitMessage) == "" {
		cfg.RateLimitMessage = "Query limit reached. Try again shortly."
	}
	exempt := map[string]struct{}{}
	for _, requester := range cfg.ExemptRequesters {
		if key := normalize(requester); key != "" {
			exempt[key] = struct{}{}
		}
	}
	return &Policy{
		cfg:     cfg,
		exempt:  exempt,
		now:     func() time.Time { return time.Now().UTC() },
		buckets: map[string][]time.Time{},
	}
}

// Check consumes one slot from the requester's sliding window.
func (p *Policy) Check(requesterID string) Decision {
	if p == nil || p.cfg.RateLimitPerWindow < 1 {
		return Decision{Allowed: true}
	}
	key := normalize(requesterID)
	if key == "" {
		key = "anonymous"
	}
	if _, ok := p.exempt[key]; ok {
		return Decision{Allowed: true}
	}

	now := p.now()
	cutoff := now.Add(-p.cfg.RateLimitWindow)

	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.buckets[key]
	filtered := entries[:0]
	for _, stamp := range entries {
		if stamp.After(cutoff) {
			filtered = append(filtered, stamp)
		}
	}
	if len(filtered) >= p.cfg.RateLimitPerWindow {
		p.buckets[key] = filtered
		return Decision{
			Allowed:    false,
			Notify:     p.cfg.RateLimitMessage,
			Reason:     "rate_limited",
			RetryAfter: filtered[0].Sub(cutoff),
		}
	}
	p.buckets[key] = append(filtered, now)
	return Decision{Allowed: true}
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
