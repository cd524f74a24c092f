package lru

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lrulimit/internal"
)

// ErrInvalidArgument is returned for a non-positive capacity, a nil key or
// value, or a key that has no usable equality (NaN, unhashable). The call
// that returns it leaves the cache untouched.
var ErrInvalidArgument = errors.New("lru: invalid argument")

type EvictReason int

const (
	EvictCapacity EvictReason = iota
	EvictResize
	EvictClear
	EvictRemove
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictResize:
		return "resize"
	case EvictClear:
		return "clear"
	case EvictRemove:
		return "remove"
	default:
		return "unknown"
	}
}

type EvictCallback func(key, value any, reason EvictReason)

// Observer is notified of lookups and evictions. Calls are made without the
// cache lock held, so implementations must be safe for concurrent use.
type Observer interface {
	Hit()
	Miss()
	Evicted(reason EvictReason)
}

type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

type Cache struct {
	size    int
	list    *internal.LruList
	items   index
	onEvict EvictCallback

	logger   *slog.Logger
	observer Observer

	mu sync.Mutex
}

type evicted struct {
	key, value any
	reason     EvictReason
}

func NewCache(size int, onEvict EvictCallback, opts ...Option) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be greater than zero, got %d", ErrInvalidArgument, size)
	}

	res := &Cache{
		size:    size,
		list:    internal.NewList(),
		items:   newIndex(size),
		onEvict: onEvict,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(res)
	}

	return res, nil
}

func (c *Cache) Clear() {
	c.mu.Lock()

	n := c.list.Len()
	var out []evicted
	if c.onEvict != nil || c.observer != nil {
		out = make([]evicted, 0, n)
		for ent := c.list.Last(); ent != nil; ent = c.list.Last() {
			c.list.Remove(ent)
			out = append(out, evicted{key: ent.Key, value: ent.Value, reason: EvictClear})
		}
	}

	c.items.clear()
	c.list.Init()

	c.mu.Unlock()

	c.logger.Debug("cache cleared", "evicted", n)
	c.notify(out)
}

// Put stores value under key and marks key as the most recently used entry.
// Adding a new key to a full cache evicts the least recently used entry.
func (c *Cache) Put(key, value any) error {
	if key == nil || value == nil {
		return fmt.Errorf("%w: key and value cannot be nil", ErrInvalidArgument)
	}

	k, err := makeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	c.mu.Lock()

	if ent, ok := c.items.find(k); ok {
		c.list.MoveToFront(ent)
		ent.Value = value
		c.mu.Unlock()
		return nil
	}

	var out []evicted
	if c.list.Len() >= c.size {
		if ev, ok := c.removeOldest(EvictCapacity); ok {
			out = append(out, ev)
		}
	}

	c.items.add(k, c.list.PushFront(key, value))

	c.mu.Unlock()

	c.notify(out)
	return nil
}

// Get returns the value stored under key and promotes key to most recently
// used. ok is false when the key is absent.
func (c *Cache) Get(key any) (val any, ok bool) {
	k, err := makeKey(key)
	if err != nil {
		c.miss()
		return nil, false
	}

	c.mu.Lock()
	ent, ok := c.items.find(k)
	if ok {
		c.list.MoveToFront(ent)
		val = ent.Value
	}
	c.mu.Unlock()

	if ok {
		c.hit()
	} else {
		c.miss()
	}
	return val, ok
}

// Resize changes the capacity. Shrinking below the current length evicts
// entries from the least recently used end until the cache fits.
func (c *Cache) Resize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be greater than zero, got %d", ErrInvalidArgument, size)
	}

	c.mu.Lock()

	c.size = size
	var out []evicted
	for c.list.Len() > size {
		ev, ok := c.removeOldest(EvictResize)
		if !ok {
			break
		}
		out = append(out, ev)
	}

	c.mu.Unlock()

	if len(out) > 0 {
		c.logger.Debug("cache resized", "cap", size, "evicted", len(out))
	}
	c.notify(out)
	return nil
}

func (c *Cache) Remove(key any) bool {
	k, err := makeKey(key)
	if err != nil {
		return false
	}

	c.mu.Lock()

	ent, ok := c.items.find(k)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.list.Remove(ent)
	c.items.remove(ent)

	c.mu.Unlock()

	c.notify([]evicted{{key: ent.Key, value: ent.Value, reason: EvictRemove}})
	return true
}

// removeOldest drops the entry at the back of the list. c.mu must be held.
func (c *Cache) removeOldest(reason EvictReason) (evicted, bool) {
	lastEntry := c.list.Last()
	if lastEntry == nil {
		return evicted{}, false
	}

	c.list.Remove(lastEntry)
	c.items.remove(lastEntry)

	return evicted{key: lastEntry.Key, value: lastEntry.Value, reason: reason}, true
}

func (c *Cache) Contains(key any) (ok bool) {
	k, err := makeKey(key)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok = c.items.find(k)

	return ok
}

// Peek looks up key without changing its recency.
func (c *Cache) Peek(key any) (val any, ok bool) {
	k, err := makeKey(key)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var ent *internal.Entry
	ent, ok = c.items.find(k)
	if ok {
		return ent.Value, true
	}

	return nil, false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

func (c *Cache) Cap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// notify runs eviction hooks in eviction order. Must be called without c.mu.
func (c *Cache) notify(out []evicted) {
	for _, ev := range out {
		if c.onEvict != nil {
			c.onEvict(ev.key, ev.value, ev.reason)
		}
		if c.observer != nil {
			c.observer.Evicted(ev.reason)
		}
	}
}

func (c *Cache) hit() {
	if c.observer != nil {
		c.observer.Hit()
	}
}

func (c *Cache) miss() {
	if c.observer != nil {
		c.observer.Miss()
	}
}
