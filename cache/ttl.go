package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/agentcache/observe"
)

// Defaults applied by NewTTL.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// TTLConfig configures a TTLCache.
type TTLConfig[T any] struct {
	// TTL is the default entry lifetime.
	// Default: 5 minutes
	TTL time.Duration

	// SweepInterval is how often the background sweep removes expired
	// entries. Negative disables the sweep; lazy expiry on read remains
	// authoritative either way.
	// Default: 1 minute
	SweepInterval time.Duration

	// Name labels the cache in logs and metrics.
	// Default: "ttl"
	Name string

	// EnableLogging toggles structured event emission for
	// set/hit/miss/expire/delete transitions.
	EnableLogging bool

	// Logger receives cache events when EnableLogging is set.
	// Default: JSON logger on stderr at info level
	Logger observe.Logger

	// Metrics receives lookup and load measurements. Optional.
	Metrics observe.Metrics

	// OnEvict, if set, is called after an entry leaves the cache via
	// expiry, Delete, or Flush. It is invoked outside the cache lock.
	OnEvict func(key string, value T)

	// Clock overrides the time source. Intended for tests.
	// Default: time.Now
	Clock func() time.Time
}

type ttlEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTLCache is a generic single-key store with fetch-on-miss.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Misses invoke the loader; concurrent misses for the same key share a
//   single in-flight load.
// - Loader failures propagate and nothing is cached (no negative caching).
type TTLCache[T any] struct {
	cfg     TTLConfig[T]
	loader  Loader[T]
	meta    observe.CacheMeta
	logger  observe.Logger
	metrics observe.Metrics

	now func() time.Time

	mu      sync.RWMutex
	entries map[string]ttlEntry[T]

	group singleflight.Group

	done      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a new TTLCache. loader may be nil, in which case a miss
// returns ErrNotFound and values only enter the cache via Set.
func NewTTL[T any](cfg TTLConfig[T], loader Loader[T]) *TTLCache[T] {
	// Apply defaults
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Name == "" {
		cfg.Name = "ttl"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NewLogger("info")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NewNoopMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	meta := observe.CacheMeta{Name: cfg.Name, Tier: "ttl"}

	c := &TTLCache[T]{
		cfg:     cfg,
		loader:  loader,
		meta:    meta,
		logger:  cfg.Logger.WithCache(meta),
		metrics: cfg.Metrics,
		now:     cfg.Clock,
		entries: make(map[string]ttlEntry[T]),
		done:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweep()
	}

	return c
}

// Get returns the value for key. An unexpired entry is returned with no
// external call; on a miss the loader is invoked, the result stored with
// the configured TTL, and returned.
func (c *TTLCache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, err
	}

	if v, ok := c.lookup(key); ok {
		c.event(ctx, "hit", key)
		c.metrics.RecordLookup(ctx, c.meta, true)
		return v, nil
	}

	c.event(ctx, "miss", key)
	c.metrics.RecordLookup(ctx, c.meta, false)

	if c.loader == nil {
		return zero, ErrNotFound
	}

	// Single-flight: concurrent misses for the same key share one load.
	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have populated the entry while this
		// call waited on the flight group.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		start := c.now()
		v, err := c.loader(ctx, key)
		c.metrics.RecordLoad(ctx, c.meta, c.now().Sub(start), err)
		if err != nil {
			return zero, err
		}

		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// lookup reads an entry, lazily expiring it if stale.
func (c *TTLCache[T]) lookup(key string) (T, bool) {
	var zero T

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return zero, false
	}

	if c.now().After(e.expiresAt) {
		// Expired - clean up lazily
		c.mu.Lock()
		cur, ok := c.entries[key]
		if ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		} else {
			ok = false
		}
		c.mu.Unlock()
		if ok {
			c.evicted(key, e.value)
		}
		return zero, false
	}

	return e.value, true
}

// Set stores a value with the configured TTL, or an override TTL if given.
func (c *TTLCache[T]) Set(key string, value T, ttl ...time.Duration) {
	d := c.cfg.TTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	c.mu.Lock()
	c.entries[key] = ttlEntry[T]{value: value, expiresAt: c.now().Add(d)}
	c.mu.Unlock()

	c.event(context.Background(), "set", key)
}

// Delete removes an entry. Idempotent - returns false on miss.
func (c *TTLCache[T]) Delete(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok {
		c.event(context.Background(), "delete", key)
		c.evicted(key, e.value)
	}
	return ok
}

// Flush removes all entries.
func (c *TTLCache[T]) Flush() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]ttlEntry[T])
	c.mu.Unlock()

	for k, e := range old {
		c.evicted(k, e.value)
	}
}

// Has reports whether an unexpired entry exists for key.
func (c *TTLCache[T]) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Keys returns the keys of all unexpired entries.
func (c *TTLCache[T]) Keys() []string {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of unexpired entries.
func (c *TTLCache[T]) Len() int {
	return len(c.Keys())
}

// Close stops the background sweep and frees all entries. Idempotent.
func (c *TTLCache[T]) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Flush()
	})
}

// sweep proactively removes expired entries. The sweep is advisory; lazy
// expiry on read is authoritative.
func (c *TTLCache[T]) sweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

func (c *TTLCache[T]) sweepOnce() {
	now := c.now()

	c.mu.Lock()
	var expired []string
	var values []T
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, k)
			values = append(values, e.value)
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	for i, k := range expired {
		c.event(context.Background(), "expire", k)
		c.evicted(k, values[i])
	}
}

func (c *TTLCache[T]) evicted(key string, value T) {
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(key, value)
	}
}

func (c *TTLCache[T]) event(ctx context.Context, event, key string) {
	if !c.cfg.EnableLogging {
		return
	}
	c.logger.Debug(ctx, "cache "+event,
		observe.Field{Key: "event", Value: event},
		observe.Field{Key: "key", Value: key},
	)
}
