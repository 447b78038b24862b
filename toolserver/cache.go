package toolserver

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/agentcache/cache"
	"github.com/jonwraymond/agentcache/health"
	"github.com/jonwraymond/agentcache/observe"
)

// DefaultConnTTL is the default connection lifetime.
const DefaultConnTTL = 30 * time.Minute

// CacheConfig configures a ConnCache.
type CacheConfig struct {
	// TTL is how long a dialed connection is reused before it is evicted
	// and re-dialed on next use.
	// Default: 30 minutes
	TTL time.Duration

	// Name labels the cache in logs and metrics.
	// Default: "toolservers"
	Name string

	// EnableLogging toggles structured event emission.
	EnableLogging bool

	// Logger receives cache events when EnableLogging is set.
	Logger observe.Logger

	// Metrics receives lookup and dial measurements. Optional.
	Metrics observe.Metrics

	// TokenProvider, if set, injects an Authorization header into every
	// expanded server config handed to the dialer.
	TokenProvider *TokenProvider
}

// ConnCache is the shared cache of remote tool-server connections. A
// connection is dialed on first use, reused until its TTL elapses, and
// closed when it leaves the cache.
type ConnCache struct {
	cfg     CacheConfig
	servers map[string]ServerConfig
	conns   *cache.TTLCache[Conn]
	logger  observe.Logger
}

// NewConnCache creates a connection cache over a fixed server set.
func NewConnCache(cfg CacheConfig, servers map[string]ServerConfig, dial Dialer) (*ConnCache, error) {
	if dial == nil {
		return nil, ErrNilDialer
	}
	for name, sc := range servers {
		if sc.Name == "" {
			sc.Name = name
		}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		servers[name] = sc.withDefaults()
	}

	// Apply defaults
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConnTTL
	}
	if cfg.Name == "" {
		cfg.Name = "toolservers"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NewLogger("info")
	}

	c := &ConnCache{
		cfg:     cfg,
		servers: servers,
		logger:  cfg.Logger.WithCache(observe.CacheMeta{Name: cfg.Name, Tier: "ttl"}),
	}

	c.conns = cache.NewTTL[Conn](cache.TTLConfig[Conn]{
		TTL:           cfg.TTL,
		Name:          cfg.Name,
		EnableLogging: cfg.EnableLogging,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
		OnEvict: func(key string, conn Conn) {
			// Stale connections are closed as they leave the cache.
			if err := conn.Close(context.Background()); err != nil {
				c.logger.Warn(context.Background(), "closing evicted connection failed",
					observe.Field{Key: "server", Value: key},
					observe.Field{Key: "error", Value: err.Error()},
				)
			}
		},
	}, func(ctx context.Context, name string) (Conn, error) {
		return c.dial(ctx, name, dial)
	})

	return c, nil
}

// dial expands one server config and hands it to the caller's dialer.
func (c *ConnCache) dial(ctx context.Context, name string, dial Dialer) (Conn, error) {
	sc, ok := c.servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownServer, name)
	}

	expanded, err := ExpandConfig(sc)
	if err != nil {
		return nil, err
	}

	if c.cfg.TokenProvider != nil {
		header, err := c.cfg.TokenProvider.AuthorizationHeader()
		if err != nil {
			return nil, err
		}
		if expanded.Headers == nil {
			expanded.Headers = make(map[string]string, 1)
		}
		expanded.Headers["Authorization"] = header
	}

	return dial(ctx, expanded)
}

// Get returns a live connection to the named server, dialing on miss.
func (c *ConnCache) Get(ctx context.Context, name string) (Conn, error) {
	return c.conns.Get(ctx, name)
}

// Tools returns the named server's current tool catalog.
func (c *ConnCache) Tools(ctx context.Context, name string) ([]ToolDef, error) {
	conn, err := c.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return conn.ListTools(ctx)
}

// Servers returns the configured server names.
func (c *ConnCache) Servers() []string {
	names := make([]string, 0, len(c.servers))
	for n := range c.servers {
		names = append(names, n)
	}
	return names
}

// Invalidate evicts (and closes) the connection for name.
func (c *ConnCache) Invalidate(name string) {
	c.conns.Delete(name)
}

// Checker returns a health checker reporting connection coverage: healthy
// when every configured server has a live connection, degraded otherwise.
// Servers are dialed lazily, so a partial registry is expected after start.
func (c *ConnCache) Checker() health.Checker {
	return health.NewCheckerFunc(c.cfg.Name, func(ctx context.Context) health.Result {
		live := c.conns.Len()
		details := map[string]any{
			"servers":          len(c.servers),
			"live_connections": live,
		}
		if live < len(c.servers) {
			return health.Degraded("not all servers connected").WithDetails(details)
		}
		return health.Healthy("all servers connected").WithDetails(details)
	})
}

// Close evicts and closes all connections and stops the cache. Idempotent.
func (c *ConnCache) Close() {
	c.conns.Close()
}
