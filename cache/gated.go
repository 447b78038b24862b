package cache

import (
	"context"
	"time"

	"github.com/jonwraymond/agentcache/observe"
)

// Defaults applied by NewGated.
const (
	DefaultProbeTTL = 10 * time.Second
	DefaultDataTTL  = 5 * time.Minute
)

// GatedConfig configures a GatedCache.
type GatedConfig struct {
	// ProbeTTL is the lifetime of cached change-detector results. It
	// must be strictly shorter than DataTTL: the probe gates freshness,
	// the data TTL is only a safety net.
	// Default: 10 seconds
	ProbeTTL time.Duration

	// DataTTL is the lifetime of cached data entries.
	// Default: 5 minutes
	DataTTL time.Duration

	// Name labels the cache in logs and metrics.
	// Default: "gated"
	Name string

	// EnableLogging toggles structured event emission for the data tier.
	// Probe-tier logging stays off regardless: its volume tracks poll
	// frequency, not actual changes.
	EnableLogging bool

	// Logger receives cache events when EnableLogging is set.
	Logger observe.Logger

	// Metrics receives lookup and load measurements. Optional.
	Metrics observe.Metrics

	// Clock overrides the time source for both tiers. Intended for tests.
	// Default: time.Now
	Clock func() time.Time
}

// GatedCache decouples "check for change" from "fetch fresh data": a
// short-TTL probe tier caches change-detector results, and only a probe
// that reports a change evicts and refetches the long-TTL data entry.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Detector failures are treated as "no change"; the cached data entry
//   keeps serving.
type GatedCache[T any] struct {
	cfg    GatedConfig
	probe  *TTLCache[bool]
	data   *TTLCache[T]
	logger observe.Logger
}

// NewGated creates a new GatedCache.
func NewGated[T any](cfg GatedConfig, detector ChangeDetector, loader Loader[T]) (*GatedCache[T], error) {
	if detector == nil {
		return nil, ErrNilDetector
	}
	if loader == nil {
		return nil, ErrNilLoader
	}

	// Apply defaults
	if cfg.ProbeTTL <= 0 {
		cfg.ProbeTTL = DefaultProbeTTL
	}
	if cfg.DataTTL <= 0 {
		cfg.DataTTL = DefaultDataTTL
	}
	if cfg.Name == "" {
		cfg.Name = "gated"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NewLogger("info")
	}

	if cfg.ProbeTTL >= cfg.DataTTL {
		return nil, ErrProbeTTL
	}

	probe := NewTTL[bool](TTLConfig[bool]{
		TTL:           cfg.ProbeTTL,
		SweepInterval: -1, // lazy expiry is enough for the probe tier
		Name:          cfg.Name + "-probe",
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
		Clock:         cfg.Clock,
	}, func(ctx context.Context, key string) (bool, error) {
		return detector(ctx, key)
	})

	data := NewTTL[T](TTLConfig[T]{
		TTL:           cfg.DataTTL,
		Name:          cfg.Name + "-data",
		EnableLogging: cfg.EnableLogging,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
		Clock:         cfg.Clock,
	}, loader)

	meta := observe.CacheMeta{Name: cfg.Name, Tier: "gated"}

	return &GatedCache[T]{
		cfg:    cfg,
		probe:  probe,
		data:   data,
		logger: cfg.Logger.WithCache(meta),
	}, nil
}

// Get returns the value for key. The change detector runs at most once per
// ProbeTTL per key; a reported change evicts the data entry before the
// read, forcing a refetch even if the entry had not yet expired.
func (g *GatedCache[T]) Get(ctx context.Context, key string) (T, error) {
	changed, err := g.probe.Get(ctx, key)
	if err != nil {
		// A failing detector must not mask an outage as a change.
		g.logger.Warn(ctx, "change detection failed, serving cached data",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		changed = false
	}

	if changed {
		g.data.Delete(key)
		// Consume the probe result so one detected change triggers
		// exactly one refetch, not one per read in the probe window.
		g.probe.Set(key, false)
		if g.cfg.EnableLogging {
			g.logger.Info(ctx, "change detected, data entry evicted",
				observe.Field{Key: "key", Value: key},
			)
		}
	}

	return g.data.Get(ctx, key)
}

// Invalidate evicts both the probe and data entries for key.
func (g *GatedCache[T]) Invalidate(key string) {
	g.probe.Delete(key)
	g.data.Delete(key)
}

// ForceRefresh invalidates key and immediately re-fetches it.
func (g *GatedCache[T]) ForceRefresh(ctx context.Context, key string) (T, error) {
	g.Invalidate(key)
	return g.data.Get(ctx, key)
}

// Close releases both tiers. Idempotent.
func (g *GatedCache[T]) Close() {
	g.probe.Close()
	g.data.Close()
}
