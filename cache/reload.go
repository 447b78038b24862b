package cache

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/jonwraymond/agentcache/observe"
)

// DefaultCheckInterval is the default throttle between digest checks.
const DefaultCheckInterval = time.Minute

// ReloadConfig configures a ReloadCache.
type ReloadConfig struct {
	// CheckInterval is the minimum time between digest checks. Reads
	// inside the window are served from memory with no external call.
	// Default: 1 minute
	CheckInterval time.Duration

	// Name labels the cache in logs and metrics.
	// Default: "reload"
	Name string

	// EnableLogging toggles structured event emission.
	EnableLogging bool

	// Logger receives cache events when EnableLogging is set.
	// Default: JSON logger on stderr at info level
	Logger observe.Logger

	// Metrics receives reload measurements. Optional.
	Metrics observe.Metrics

	// Tracer receives reload spans. Optional.
	Tracer observe.Tracer

	// EscalateAfter is the number of consecutive digest-check failures
	// after which reads surface ErrDigestUnavailable instead of serving
	// stale data. Zero means stale data is served indefinitely.
	EscalateAfter int

	// Clock overrides the time source. Intended for tests.
	// Default: time.Now
	Clock func() time.Time
}

// ReloadCache owns an entire named collection, periodically re-deriving it
// from a cheap digest of the authoritative store. On a digest change the
// whole collection is replaced in one atomic swap; between checks reads are
// served from memory with no external call.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - A reader never observes a partially reloaded collection.
// - A digest-check failure never destroys the existing collection.
type ReloadCache[T any] struct {
	cfg     ReloadConfig
	digest  DigestFunc
	load    CollectionLoader[T]
	meta    observe.CacheMeta
	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer

	now func() time.Time

	initMu      sync.Mutex
	mu          sync.Mutex
	entries     map[string]T
	lastDigest  string
	lastCheck   time.Time
	initialized bool
	failures    int

	onSwap []func()
}

// NewReload creates a new ReloadCache.
func NewReload[T any](cfg ReloadConfig, digest DigestFunc, load CollectionLoader[T]) (*ReloadCache[T], error) {
	if digest == nil {
		return nil, ErrNilDigest
	}
	if load == nil {
		return nil, ErrNilLoader
	}

	// Apply defaults
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Name == "" {
		cfg.Name = "reload"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NewLogger("info")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NewNoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observe.NewNoopTracer()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	meta := observe.CacheMeta{Name: cfg.Name, Tier: "reload"}

	return &ReloadCache[T]{
		cfg:     cfg,
		digest:  digest,
		load:    load,
		meta:    meta,
		logger:  cfg.Logger.WithCache(meta),
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		now:     cfg.Clock,
	}, nil
}

// OnSwap registers a callback invoked after every successful collection
// swap (including the initial load). Register before Initialize.
func (c *ReloadCache[T]) OnSwap(fn func()) {
	c.mu.Lock()
	c.onSwap = append(c.onSwap, fn)
	c.mu.Unlock()
}

// Initialize performs the first load. Idempotent: a second call is a no-op.
// A failure of the initial digest or load is surfaced as a hard error since
// no cached state exists to fall back on.
func (c *ReloadCache[T]) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	d, err := c.digest(ctx)
	if err != nil {
		return fmt.Errorf("cache: initial digest for %q: %w", c.cfg.Name, err)
	}

	if err := c.reload(ctx, d); err != nil {
		return fmt.Errorf("cache: initial load for %q: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.initialized = true
	c.lastCheck = c.now()
	c.mu.Unlock()

	return nil
}

// Sync runs the throttled change check without reading a key. Within the
// check window it is a no-op; callers that short-circuit on their own
// derived state use it to keep change detection running.
func (c *ReloadCache[T]) Sync(ctx context.Context) error {
	return c.checkForChange(ctx)
}

// Get returns the value for key, after a throttled change check.
// The boolean reports whether the key is present in the collection.
func (c *ReloadCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	if err := c.checkForChange(ctx); err != nil {
		return zero, false, err
	}

	c.mu.Lock()
	v, ok := c.entries[key]
	c.mu.Unlock()

	c.metrics.RecordLookup(ctx, c.meta, ok)
	return v, ok, nil
}

// GetAll returns a snapshot of the whole collection, after a throttled
// change check. The snapshot is either fully pre-reload or fully
// post-reload, never a mix.
func (c *ReloadCache[T]) GetAll(ctx context.Context) (map[string]T, error) {
	if err := c.checkForChange(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.entries), nil
}

// Len returns the current collection size.
func (c *ReloadCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Initialized reports whether the first load has completed.
func (c *ReloadCache[T]) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Close releases the collection. The cache must not be used afterwards.
func (c *ReloadCache[T]) Close() {
	c.mu.Lock()
	c.entries = nil
	c.initialized = false
	c.mu.Unlock()
}

// checkForChange runs the throttled digest comparison and reloads the
// collection when the digest moved. Digest failures are swallowed and
// logged; the stale collection keeps serving until EscalateAfter
// consecutive failures (if configured).
func (c *ReloadCache[T]) checkForChange(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.now().Sub(c.lastCheck) < c.cfg.CheckInterval {
		c.mu.Unlock()
		return nil
	}
	// Record the check time before the external call so concurrent
	// readers inside the window skip it.
	c.lastCheck = c.now()
	last := c.lastDigest
	c.mu.Unlock()

	d, err := c.digest(ctx)
	if err != nil {
		c.mu.Lock()
		c.failures++
		failures := c.failures
		c.mu.Unlock()

		c.logger.Warn(ctx, "digest check failed, serving cached collection",
			observe.Field{Key: "error", Value: err.Error()},
			observe.Field{Key: "consecutive_failures", Value: failures},
		)

		if c.cfg.EscalateAfter > 0 && failures >= c.cfg.EscalateAfter {
			return fmt.Errorf("%w: %d consecutive failures: %v", ErrDigestUnavailable, failures, err)
		}
		return nil
	}

	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()

	if d == last {
		return nil
	}

	if err := c.reload(ctx, d); err != nil {
		// Reload aborted; the old collection is retained and the digest
		// stays unrecorded so the next check retries.
		c.logger.Error(ctx, "collection reload failed, serving cached collection",
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	return nil
}

// reload replaces the entire collection and records the digest that
// produced it. The swap is atomic from the reader's perspective.
func (c *ReloadCache[T]) reload(ctx context.Context, d string) error {
	ctx, span := c.tracer.StartSpan(ctx, c.meta, "reload")

	start := c.now()
	m, err := c.load(ctx)
	c.metrics.RecordReload(ctx, c.meta, len(m), c.now().Sub(start), err)
	c.tracer.EndSpan(span, err)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = m
	c.lastDigest = d
	callbacks := make([]func(), len(c.onSwap))
	copy(callbacks, c.onSwap)
	c.mu.Unlock()

	if c.cfg.EnableLogging {
		c.logger.Info(ctx, "collection reloaded",
			observe.Field{Key: "entries", Value: len(m)},
			observe.Field{Key: "digest", Value: d},
		)
	}

	for _, fn := range callbacks {
		fn()
	}
	return nil
}
