// Package breaker implements a shared circuit breaker guarding the video
// provider. While open, calls fail immediately without touching the
// network, protecting both the provider and the caller's latency budget
// from a known-bad dependency.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State enumerates the breaker's positions.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// OpenError is returned while the breaker refuses calls. RetryAfter tells
// the caller when the next probe becomes possible.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open, retry after %s", e.RetryAfter.Round(time.Second))
}

// IsOpen reports whether err is a breaker-open rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// Breaker is a process-wide, mutex-guarded circuit breaker. It is shared by
// every in-flight saga; construct one per upstream dependency and inject
// it, never reach for a package-level instance.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool

	threshold int
	cooldown  time.Duration

	logger zerolog.Logger
	now    func() time.Time

	// OnStateChange, when set, observes every transition. Used to feed
	// metrics; must not block.
	OnStateChange func(from, to State)
}

// New constructs a closed breaker that opens after threshold consecutive
// failures and probes again after cooldown.
func New(threshold int, cooldown time.Duration, logger zerolog.Logger) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger.With().Str("component", "breaker").Logger(),
		now:       time.Now,
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn under the breaker's supervision. While open it returns
// *OpenError without calling fn. In half-open exactly one probe is
// admitted; its outcome closes or re-opens the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.cooldown {
			return &OpenError{RetryAfter: b.cooldown - elapsed}
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			// A probe is already in flight; everyone else waits it out.
			return &OpenError{RetryAfter: b.cooldown}
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.probing = false
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
		return
	}

	b.lastFailure = b.now()
	if b.state == StateHalfOpen {
		// Probe failed: back to open with the counter at the value that
		// tripped the breaker, cooldown timer restarted.
		b.failures = b.threshold
		b.probing = false
		b.transition(StateOpen)
		return
	}

	b.failures++
	if b.failures >= b.threshold && b.state == StateClosed {
		b.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.logger.Warn().
		Str("from", from.String()).
		Str("to", to.String()).
		Int("failures", b.failures).
		Msg("breaker state change")
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
