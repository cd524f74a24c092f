package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// WindowLimiter admits at most maxRequests events in any trailing window.
type WindowLimiter struct {
	mu sync.Mutex
	// events holds admitted timestamps, oldest first
	events []time.Time

	maxRequests int
	window      time.Duration

	// rejecting is set on the first rejection after an admission so the
	// transition is logged once rather than on every denied call
	rejecting bool

	cfg config
}

var _ Admitter = (*WindowLimiter)(nil)

// NewWindowLimiter returns a limiter allowing maxRequests admissions per window.
func NewWindowLimiter(maxRequests int, window time.Duration, opts ...Option) (*WindowLimiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("%w: maxRequests must be greater than zero, got %d", ErrInvalidArgument, maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be greater than zero, got %s", ErrInvalidArgument, window)
	}
	l := &WindowLimiter{
		events:      make([]time.Time, 0, maxRequests),
		maxRequests: maxRequests,
		window:      window,
		cfg:         defaultConfig(),
	}
	for _, o := range opts {
		o(&l.cfg)
	}
	return l, nil
}

// TryAdmit prunes timestamps that have aged out of the window, then admits
// and records now if there is room. Returns true if the event may proceed.
func (l *WindowLimiter) TryAdmit() bool {
	l.mu.Lock()
	now := l.cfg.now()
	l.prune(now)

	admitted := len(l.events) < l.maxRequests
	logTransition := false
	if admitted {
		l.events = append(l.events, now)
		l.rejecting = false
	} else if !l.rejecting {
		l.rejecting = true
		logTransition = true
	}
	l.mu.Unlock()

	if logTransition {
		l.cfg.logger.Debug("window limiter rejecting",
			"max_requests", l.maxRequests,
			"window", l.window,
		)
	}
	l.cfg.report(admitted)
	return admitted
}

// prune drops every timestamp t with now-t >= window. Timestamps are in
// admission order so the stale ones are always a prefix. l.mu must be held.
func (l *WindowLimiter) prune(now time.Time) {
	i := 0
	for i < len(l.events) && now.Sub(l.events[i]) >= l.window {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(l.events) {
		l.events = l.events[:0]
		return
	}
	l.events = l.events[i:]
}

// Len reports how many admitted timestamps are currently retained. Stale
// entries are only dropped by the next TryAdmit.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Reset forgets every admitted event.
func (l *WindowLimiter) Reset() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.rejecting = false
	l.mu.Unlock()
}
