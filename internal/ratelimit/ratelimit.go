package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket limiter used to pace outbound activity requests.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	tokens     float64
	maxTokens  float64
	lastRefill time.Time
}

// New creates a limiter allowing rps requests per second with a burst of the
// same size. Non-positive rates fall back to 1 rps.
func New(rps float64) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	return &Limiter{
		rate:       rps,
		tokens:     rps,
		maxTokens:  rps,
		lastRefill: time.Now(),
	}
}

// Allow reports whether a token is immediately available, consuming it if so.
func (l *Limiter) Allow() bool {
	return l.take()
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.take() {
			return nil
		}

		wait := time.Duration(float64(time.Second) / l.rate)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}
