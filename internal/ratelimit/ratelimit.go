// Package ratelimit wraps golang.org/x/time/rate for outbound venue calls.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

// Limiter is a token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// New allows requestsPerSecond with the given burst. A non-positive rate
// means unlimited.
func New(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available. Cancellation surfaces as
// CodeRateLimitExceeded wrapping the context error.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}
	return nil
}

// Allow reports whether a request may happen now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetRate updates the sustained rate.
func (l *Limiter) SetRate(requestsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// Keyed holds one limiter per key, e.g. per venue or endpoint.
type Keyed struct {
	mu       sync.Mutex
	rps      float64
	burst    int
	limiters map[string]*Limiter
}

func NewKeyed(requestsPerSecond float64, burst int) *Keyed {
	return &Keyed{rps: requestsPerSecond, burst: burst, limiters: make(map[string]*Limiter)}
}

// For returns the limiter for key, creating it on first use.
func (k *Keyed) For(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = New(k.rps, k.burst)
		k.limiters[key] = l
	}
	return l
}

func (k *Keyed) Wait(ctx context.Context, key string) error {
	return k.For(key).Wait(ctx)
}
