package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/agentcache/observe"
)

// DefaultVerifyInterval is the default throttle between digest
// verifications of the same key.
const DefaultVerifyInterval = 30 * time.Second

// DigestConfig configures a DigestCache.
type DigestConfig struct {
	// VerifyInterval is the minimum time between digest verifications
	// for the same key. Reads inside the window return the cached value
	// with no external call. It bounds digest calls to one per key per
	// window, independent of read volume.
	// Default: 30 seconds
	VerifyInterval time.Duration

	// Name labels the cache in logs and metrics.
	// Default: "digest"
	Name string

	// EnableLogging toggles structured event emission.
	EnableLogging bool

	// Logger receives cache events when EnableLogging is set.
	Logger observe.Logger

	// Metrics receives lookup and load measurements. Optional.
	Metrics observe.Metrics

	// Clock overrides the time source. Intended for tests.
	// Default: time.Now
	Clock func() time.Time
}

type digestEntry[T any] struct {
	value      T
	digest     string
	verifiedAt time.Time
}

// DigestCache memoizes a value together with the digest that produced it,
// re-verifying the digest only after a throttle window elapses. The value
// is refetched only when the fresh digest differs from the memoized one.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent reloads of the same
//   key share a single flight.
// - Digest functions must be order-stable and cheap relative to reload.
// - A digest failure while a value is memoized serves the memoized value.
type DigestCache[T any] struct {
	cfg     DigestConfig
	meta    observe.CacheMeta
	logger  observe.Logger
	metrics observe.Metrics

	now func() time.Time

	mu      sync.Mutex
	entries map[string]digestEntry[T]

	group singleflight.Group
}

// NewDigest creates a new DigestCache.
func NewDigest[T any](cfg DigestConfig) *DigestCache[T] {
	// Apply defaults
	if cfg.VerifyInterval <= 0 {
		cfg.VerifyInterval = DefaultVerifyInterval
	}
	if cfg.Name == "" {
		cfg.Name = "digest"
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

	meta := observe.CacheMeta{Name: cfg.Name, Tier: "digest"}

	return &DigestCache[T]{
		cfg:     cfg,
		meta:    meta,
		logger:  cfg.Logger.WithCache(meta),
		metrics: cfg.Metrics,
		now:     cfg.Clock,
		entries: make(map[string]digestEntry[T]),
	}
}

// GetVerified returns the value for key, verifying freshness through the
// digest function at most once per VerifyInterval:
//
//  1. Inside the throttle window a memoized value is returned with no
//     external call.
//  2. Outside the window the digest is fetched and the verification
//     timestamp recorded regardless of outcome; an unchanged digest
//     returns the memoized value.
//  3. A changed digest (or no memoized value) invokes reload, fetches the
//     digest associated with the fresh value, and memoizes the pair.
func (c *DigestCache[T]) GetVerified(
	ctx context.Context,
	key string,
	digest DigestFunc,
	reload func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, err
	}
	if digest == nil {
		return zero, ErrNilDigest
	}
	if reload == nil {
		return zero, ErrNilLoader
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Sub(e.verifiedAt) < c.cfg.VerifyInterval {
		c.mu.Unlock()
		c.metrics.RecordLookup(ctx, c.meta, true)
		return e.value, nil
	}
	c.mu.Unlock()

	if ok {
		d, err := digest(ctx)

		// The verification timestamp is recorded regardless of the
		// digest outcome so a flapping store cannot defeat the throttle.
		c.mu.Lock()
		if cur, still := c.entries[key]; still {
			cur.verifiedAt = c.now()
			c.entries[key] = cur
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn(ctx, "digest verification failed, serving cached value",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err.Error()},
			)
			c.metrics.RecordLookup(ctx, c.meta, true)
			return e.value, nil
		}

		if d == e.digest {
			c.metrics.RecordLookup(ctx, c.meta, true)
			return e.value, nil
		}

		if c.cfg.EnableLogging {
			c.logger.Info(ctx, "digest changed, reloading value",
				observe.Field{Key: "key", Value: key},
			)
		}
	}

	c.metrics.RecordLookup(ctx, c.meta, false)

	// Reload path. Concurrent callers for the same key share one reload.
	v, err, _ := c.group.Do(key, func() (any, error) {
		start := c.now()
		v, err := reload(ctx)
		c.metrics.RecordLoad(ctx, c.meta, c.now().Sub(start), err)
		if err != nil {
			return zero, err
		}

		// Fetch the digest associated with the fresh value. A failure
		// here leaves an empty digest so the next verification outside
		// the window reloads again.
		d, derr := digest(ctx)
		if derr != nil {
			c.logger.Warn(ctx, "digest fetch after reload failed",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: derr.Error()},
			)
			d = ""
		}

		c.mu.Lock()
		c.entries[key] = digestEntry[T]{value: v, digest: d, verifiedAt: c.now()}
		c.mu.Unlock()

		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Delete removes the memoized entry for key. Idempotent.
func (c *DigestCache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Flush removes all memoized entries.
func (c *DigestCache[T]) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]digestEntry[T])
	c.mu.Unlock()
}

// Keys returns the keys of all memoized entries.
func (c *DigestCache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of memoized entries.
func (c *DigestCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
