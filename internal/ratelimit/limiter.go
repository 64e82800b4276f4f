// Package ratelimit provides named minimum-interval gates for provider
// clients. Each provider owns one gate shared by all of its calls within
// the process, so requests serialize behind it rather than fanning out.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewInterval creates a gate that admits one request per minInterval.
// Burst is 1: callers wait until last-request-time + interval has elapsed.
func NewInterval(name string, minInterval time.Duration) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		name:    name,
	}
}

// NewUnlimited creates a gate that never blocks. Tests substitute this for
// the real per-provider gates.
func NewUnlimited(name string) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Inf, 1),
		name:    name,
	}
}

// Wait blocks until the gate allows a request to proceed.
// Returns an error if the context is cancelled first.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request can proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the name of this gate.
func (l *Limiter) Name() string {
	return l.name
}
