package ratelimit

import (
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidArgument is returned by constructors for non-positive limits.
var ErrInvalidArgument = errors.New("ratelimit: invalid argument")

// Admitter decides whether one more event may proceed. TryAdmit never blocks.
type Admitter interface {
	TryAdmit() bool
}

// Observer is told about every decision, after the limiter lock is released.
type Observer interface {
	Admitted()
	Rejected()
}

type config struct {
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

func defaultConfig() config {
	return config{
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
}

type Option func(*config)

// WithClock replaces time.Now. The clock should not go backwards; if it does,
// timestamps from the future are kept until the window passes them.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

func (c *config) report(admitted bool) {
	if c.observer == nil {
		return
	}
	if admitted {
		c.observer.Admitted()
	} else {
		c.observer.Rejected()
	}
}
