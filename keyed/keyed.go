// Package keyed tracks one admission limiter per principal (client id, IP,
// API key) and bounds how many principals are tracked at once.
//
// Idle principals are not swept by a timer. They sit in an LRU cache and the
// least recently seen one is dropped when a new principal would exceed
// maxPrincipals. A dropped principal starts over with a fresh limiter the
// next time it is seen.
package keyed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "lrulimit"
	"lrulimit/ratelimit"
)

// ErrInvalidArgument is returned for a non-positive principal bound, a nil
// factory, or an empty principal.
var ErrInvalidArgument = errors.New("keyed: invalid argument")

// Factory builds the limiter for a newly seen principal.
type Factory func() (ratelimit.Admitter, error)

// Window returns a Factory producing sliding-window limiters.
func Window(maxRequests int, window time.Duration, opts ...ratelimit.Option) Factory {
	return func() (ratelimit.Admitter, error) {
		return ratelimit.NewWindowLimiter(maxRequests, window, opts...)
	}
}

// TokenBucket returns a Factory producing token-bucket limiters.
func TokenBucket(perSecond float64, burst int, opts ...ratelimit.Option) Factory {
	return func() (ratelimit.Admitter, error) {
		return ratelimit.NewTokenBucket(perSecond, burst, opts...)
	}
}

// principal is the cached state for one key
type principal struct {
	limiter ratelimit.Admitter
	// logged tracks whether the first-denial hook already fired
	// resets when the entry is evicted and re-created
	logged bool
}

// Limiter admits requests per principal, each against its own limiter.
type Limiter struct {
	mu         sync.Mutex
	principals *lru.Cache
	factory    Factory

	logger *slog.Logger

	// OnFirstDenied is called once per tracked principal when it is first rejected
	OnFirstDenied func(principal string)

	// OnDenied is called on every rejection
	OnDenied func(principal string)
}

type Option func(*Limiter)

func WithLogger(l *slog.Logger) Option {
	return func(k *Limiter) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithOnFirstDenied sets a callback for the first denial per principal, used for logging.
func WithOnFirstDenied(fn func(principal string)) Option {
	return func(k *Limiter) {
		k.OnFirstDenied = fn
	}
}

// WithOnDenied sets a callback for every denied request, used for counters.
func WithOnDenied(fn func(principal string)) Option {
	return func(k *Limiter) {
		k.OnDenied = fn
	}
}

// New tracks up to maxPrincipals principals. factory is called once up front
// so invalid limiter parameters are reported here rather than on first use.
func New(maxPrincipals int, factory Factory, opts ...Option) (*Limiter, error) {
	if maxPrincipals <= 0 {
		return nil, fmt.Errorf("%w: maxPrincipals must be greater than zero, got %d", ErrInvalidArgument, maxPrincipals)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: factory is nil", ErrInvalidArgument)
	}
	if _, err := factory(); err != nil {
		return nil, fmt.Errorf("build limiter: %w", err)
	}

	k := &Limiter{
		factory: factory,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(k)
	}

	// the eviction hook runs inside Allow while k.mu is held, it must not lock
	cache, err := lru.NewCache(maxPrincipals, func(key, _ any, reason lru.EvictReason) {
		k.logger.Debug("principal no longer tracked", "principal", key, "reason", reason.String())
	})
	if err != nil {
		return nil, err
	}
	k.principals = cache

	return k, nil
}

// Allow reports whether principal may make one more request.
func (k *Limiter) Allow(principal string) (bool, error) {
	if principal == "" {
		return false, fmt.Errorf("%w: empty principal", ErrInvalidArgument)
	}

	k.mu.Lock()
	p, err := k.lookup(principal)
	if err != nil {
		k.mu.Unlock()
		return false, err
	}
	allowed := p.limiter.TryAdmit()

	first := false
	if !allowed && !p.logged {
		p.logged = true
		first = true
	}
	// release lock before calling hooks, they may do slow work
	k.mu.Unlock()

	if allowed {
		return true, nil
	}
	if first {
		k.logger.Info("principal rate limited", "principal", principal)
		if k.OnFirstDenied != nil {
			k.OnFirstDenied(principal)
		}
	}
	if k.OnDenied != nil {
		k.OnDenied(principal)
	}
	return false, nil
}

// lookup returns the tracked state for name, creating it if needed. k.mu
// must be held so two callers never build separate limiters for one name.
func (k *Limiter) lookup(name string) (*principal, error) {
	if v, ok := k.principals.Get(name); ok {
		return v.(*principal), nil
	}
	lim, err := k.factory()
	if err != nil {
		return nil, fmt.Errorf("build limiter for %q: %w", name, err)
	}
	p := &principal{limiter: lim}
	if err := k.principals.Put(name, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Len reports how many principals are currently tracked.
func (k *Limiter) Len() int {
	return k.principals.Len()
}

// Forget drops a principal's state so its next request starts fresh.
func (k *Limiter) Forget(principal string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.principals.Remove(principal)
}
