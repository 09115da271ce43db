// Package ratelimiter implements a per-API-class request fabric: a bounded
// concurrency semaphore paired with a minimum inter-start spacing, FIFO
// dispatch, and cancellation-safe acquisition.
package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// APIClass groups calls by the exchange's published rate-limit category.
type APIClass string

const (
	ClassCLOB    APIClass = "CLOB"
	ClassGamma   APIClass = "GAMMA"
	ClassData    APIClass = "DATA"
	ClassOnChain APIClass = "ONCHAIN"
)

// bucket tracks one API class's concurrency and pacing state.
type bucket struct {
	mu            sync.Mutex
	sem           chan struct{}
	minTime       time.Duration
	nextStartAt   time.Time
	widenedUntil  time.Time
	widenedFactor float64
	recent429s    []time.Time
}

func newBucket(maxConcurrent int, minTime time.Duration) *bucket {
	return &bucket{
		sem:     make(chan struct{}, maxConcurrent),
		minTime: minTime,
	}
}

// nextSlot returns the time this bucket's next caller may start, and
// records that slot as taken.
func (b *bucket) nextSlot() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	minTime := b.minTime
	if time.Now().Before(b.widenedUntil) {
		minTime = time.Duration(float64(minTime) * b.widenedFactor)
	}

	now := time.Now()
	start := b.nextStartAt
	if start.Before(now) {
		start = now
	}
	b.nextStartAt = start.Add(minTime)
	return start
}

// recordRateLimited widens minTime temporarily after repeated 429s in a
// short window, per the spec's "shared bucket budget" rule.
func (b *bucket) recordRateLimited() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-10 * time.Second)
	filtered := b.recent429s[:0]
	for _, t := range b.recent429s {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	b.recent429s = append(filtered, now)

	if len(b.recent429s) >= 3 {
		b.widenedUntil = now.Add(30 * time.Second)
		b.widenedFactor = 3.0
	}
}

// RateLimiter dispatches calls under per-class concurrency and pacing
// limits. Config is set once at construction; classes not configured fall
// back to a permissive default bucket.
type RateLimiter struct {
	logger  *zap.Logger
	buckets map[APIClass]*bucket
	mu      sync.Mutex
}

// ClassConfig configures one API class's limits.
type ClassConfig struct {
	MaxConcurrent int
	MinTime       time.Duration
}

// DefaultConfig returns conservative defaults for all four classes, tuned to
// the exchange's published per-class limits.
func DefaultConfig() map[APIClass]ClassConfig {
	return map[APIClass]ClassConfig{
		ClassCLOB:    {MaxConcurrent: 10, MinTime: 20 * time.Millisecond},
		ClassGamma:   {MaxConcurrent: 5, MinTime: 50 * time.Millisecond},
		ClassData:    {MaxConcurrent: 3, MinTime: 100 * time.Millisecond},
		ClassOnChain: {MaxConcurrent: 1, MinTime: 200 * time.Millisecond},
	}
}

// New creates a RateLimiter with the given per-class configuration.
func New(cfg map[APIClass]ClassConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &RateLimiter{logger: logger, buckets: make(map[APIClass]*bucket, len(cfg))}
	for class, c := range cfg {
		maxConcurrent := c.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 1
		}
		rl.buckets[class] = newBucket(maxConcurrent, c.MinTime)
	}
	return rl
}

func (rl *RateLimiter) bucketFor(class APIClass) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[class]
	if !ok {
		b = newBucket(1, 0)
		rl.buckets[class] = b
	}
	return b
}

// Execute acquires a slot in apiType's bucket, waits until the class's next
// available start time, runs fn, then releases the slot. Queued callers are
// dispatched FIFO via the channel semaphore's wakeup order. If ctx is
// cancelled before a slot is acquired, Execute returns ctx.Err() without
// ever invoking fn. If fn returns an error, the slot is still released and
// the error is propagated to the caller.
func Execute[T any](ctx context.Context, rl *RateLimiter, apiType APIClass, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b := rl.bucketFor(apiType)
	waitStart := time.Now()

	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-b.sem }()

	start := b.nextSlot()
	if d := time.Until(start); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	WaitDurationSeconds.WithLabelValues(string(apiType)).Observe(time.Since(waitStart).Seconds())

	result, err := fn(ctx)
	if isRateLimitedErr(err) {
		b.recordRateLimited()
		RateLimitHitsTotal.WithLabelValues(string(apiType)).Inc()
	}
	CallsTotal.WithLabelValues(string(apiType)).Inc()
	return result, err
}

func isRateLimitedErr(err error) bool {
	if err == nil {
		return false
	}
	type statusCoder interface{ StatusCode() int }
	if sc, ok := err.(statusCoder); ok {
		return sc.StatusCode() == 429
	}
	return false
}

// ErrBucketNotConfigured is returned by callers that look up a named class
// without ever having configured it, helping catch wiring mistakes early.
func ErrBucketNotConfigured(class APIClass) error {
	return fmt.Errorf("ratelimiter: class %q not configured", class)
}
