package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests with a token bucket and optional jitter.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
}

// NewLimiter creates a limiter allowing rps requests per second with the given
// burst. Jitter (0.0 to 1.0) adds up to jitter*interval of extra delay after
// each token. If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, burst int, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	if burst < 1 {
		burst = 1
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		interval: time.Duration(float64(time.Second) / rps),
		jitter:   jitter,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if l.jitter <= 0 {
		return nil
	}

	extra := time.Duration(rand.Float64() * l.jitter * float64(l.interval))
	if extra <= 0 {
		return nil
	}
	t := time.NewTimer(extra)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limited reports whether the limiter ever blocks.
func (l *Limiter) Limited() bool {
	return l != nil && l.limiter != nil
}
