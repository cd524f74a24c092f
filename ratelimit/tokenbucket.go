package ratelimit

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TokenBucket admits bursts of up to burst events, refilling at perSecond.
// Unlike WindowLimiter it spreads admissions out instead of resetting at
// window boundaries.
type TokenBucket struct {
	limiter *rate.Limiter
	cfg     config
}

var _ Admitter = (*TokenBucket)(nil)

// NewTokenBucket returns a bucket holding burst tokens that refills at
// perSecond tokens per second. NewTokenBucket(10, 50) allows 50 requests at
// once, then 10 per second.
func NewTokenBucket(perSecond float64, burst int, opts ...Option) (*TokenBucket, error) {
	if perSecond <= 0 {
		return nil, fmt.Errorf("%w: perSecond must be greater than zero, got %g", ErrInvalidArgument, perSecond)
	}
	if burst <= 0 {
		return nil, fmt.Errorf("%w: burst must be greater than zero, got %d", ErrInvalidArgument, burst)
	}
	b := &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		cfg:     defaultConfig(),
	}
	for _, o := range opts {
		o(&b.cfg)
	}
	return b, nil
}

// TryAdmit takes one token if available. rate.Limiter is safe for concurrent
// use so no extra locking is needed.
func (b *TokenBucket) TryAdmit() bool {
	admitted := b.limiter.AllowN(b.cfg.now(), 1)
	b.cfg.report(admitted)
	return admitted
}
