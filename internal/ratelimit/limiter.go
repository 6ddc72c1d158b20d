// Package ratelimit provides per-dependency sliding-window request
// limiters. A call past the ceiling blocks until the window frees a slot
// rather than failing; external dependencies see a smooth request rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most limit calls per window. Safe for concurrent use
// from many in-flight sagas.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	// sent holds the admission timestamps still inside the window, oldest
	// first.
	sent []time.Time
	now  func() time.Time
}

// NewPerMinute builds a limiter with a requests-per-minute ceiling.
func NewPerMinute(rpm int) *Limiter {
	return New(rpm, time.Minute)
}

// New builds a limiter admitting limit calls per window.
func New(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{limit: limit, window: window, now: time.Now}
}

// Wait blocks until a slot is available or the context is cancelled. On
// success the slot is consumed.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire consumes a slot if one is free, otherwise returns how long to
// wait before the oldest admission leaves the window.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	trimmed := l.sent[:0]
	for _, t := range l.sent {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	l.sent = trimmed

	if len(l.sent) < l.limit {
		l.sent = append(l.sent, now)
		return 0, true
	}
	return l.sent[0].Sub(cutoff), false
}

// Dependency names used across the orchestrator.
const (
	DepScrape   = "scrape"
	DepScript   = "script"
	DepProvider = "video_provider"
)

// Set holds one limiter per external dependency.
type Set struct {
	limiters map[string]*Limiter
}

// NewSet builds the standard limiter set from per-dependency RPM ceilings.
func NewSet(scrapeRPM, scriptRPM, providerRPM int) *Set {
	return &Set{limiters: map[string]*Limiter{
		DepScrape:   NewPerMinute(scrapeRPM),
		DepScript:   NewPerMinute(scriptRPM),
		DepProvider: NewPerMinute(providerRPM),
	}}
}

// Wait blocks on the named dependency's limiter. Unknown names pass
// through unlimited.
func (s *Set) Wait(ctx context.Context, dep string) error {
	if s == nil {
		return nil
	}
	l, ok := s.limiters[dep]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
