// Package ratelimit throttles repeated events per key with token buckets.
// The connection manager uses it to keep per-pair warnings from flooding
// the log; the MCP server uses it to bound tool calls.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned by ToolLimiters.Check when a tool is throttled.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter holds one bucket per key. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity and initial fill
	nowFunc func() time.Time
}

type bucket struct {
	tokens  float64
	last    time.Time
	dropped int
}

// NewLimiter returns a limiter refilling rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow reports whether an event for key may proceed.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Admit(key)
	return ok
}

// Admit is Allow that also returns how many events for key were refused
// since the previous admitted one.
func (l *Limiter) Admit(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.last = now
	}
	if b.tokens < 1 {
		b.dropped++
		return false, 0
	}
	b.tokens--
	dropped := b.dropped
	b.dropped = 0
	return true, dropped
}

// Reset forgets all buckets.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the limits for the connectome tools. Mutating
// tools are limited harder than read-only ones.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"connectome_status":          NewLimiter(1.0, 10),      // 60/minute, burst 10
		"connectome_models":          NewLimiter(1.0, 10),      // 60/minute, burst 10
		"connectome_num_connections": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"connectome_connections":     NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"connectome_synapse_status":  NewLimiter(1.0, 10),      // 60/minute, burst 10
		"connectome_connect":         NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"connectome_snapshot":        NewLimiter(5.0/60.0, 2),  // 5/minute, burst 2
	}
}

// Check returns ErrRateLimited if tool is currently throttled. Tools
// without a limiter always pass.
func (t ToolLimiters) Check(tool string) error {
	l, ok := t[tool]
	if !ok {
		return nil
	}
	if !l.Allow(tool) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, tool)
	}
	return nil
}
