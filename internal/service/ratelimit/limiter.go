package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum delay between request submissions, shared by
// every worker that holds it.
type Limiter struct {
	lim *rate.Limiter
}

// New returns a limiter allowing one request per minDelay. A non-positive
// delay disables pacing.
func New(minDelay time.Duration) *Limiter {
	if minDelay <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(minDelay), 1)}
}

// Wait blocks until the next submission is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
