package agent

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/agentcache/cache"
	"github.com/jonwraymond/agentcache/health"
	"github.com/jonwraymond/agentcache/observe"
	"github.com/jonwraymond/agentcache/toolserver"
)

// Agent is a composite object assembled from independently cached fields.
// Sub-agents are resolved through the owning composer's registry, so the
// composition forms a graph reachable from the registry.
type Agent struct {
	Name         string
	Instructions string
	Model        Model
	Tools        []Tool
	SubAgents    []*Agent
}

// State tracks an agent's materialization lifecycle.
type State int

const (
	// StateUnregistered means the agent has never been looked up, or its
	// registry entry was cleared by a collection change.
	StateUnregistered State = iota
	// StateMaterializing means field resolution is in progress.
	StateMaterializing
	// StateReady means the agent is fully materialized in the registry.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateMaterializing:
		return "materializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ComposerConfig configures a Composer. The store, registries, and
// connection cache are injected explicitly; the composer holds no global
// state, so tests construct isolated instances freely.
type ComposerConfig struct {
	// Store is the authoritative definition store. Required.
	Store Store

	// Models is the closed model-provider registry. Required.
	Models *ModelRegistry

	// Tools is the closed local tool registry. Optional; a definition
	// naming a local tool without one fails to build.
	Tools *ToolRegistry

	// Servers is the shared remote tool-server connection cache.
	// Optional; a definition naming a server without one fails to build.
	Servers *toolserver.ConnCache

	// CheckInterval throttles collection-level digest checks.
	// Default: 1 minute
	CheckInterval time.Duration

	// VerifyInterval throttles per-field digest verification.
	// Default: 30 seconds
	VerifyInterval time.Duration

	// EscalateAfter is passed through to the definition reload cache.
	EscalateAfter int

	// EnableLogging toggles structured event emission.
	EnableLogging bool

	// Logger receives composer and cache events.
	Logger observe.Logger

	// Metrics receives cache measurements. Optional.
	Metrics observe.Metrics

	// Tracer receives reload spans. Optional.
	Tracer observe.Tracer

	// Clock overrides the time source of every cache tier. Intended for
	// tests.
	// Default: time.Now
	Clock func() time.Time
}

// Composer materializes agents lazily from the cached definition
// collection, resolving each field through its own hash-verified cache.
type Composer struct {
	cfg   ComposerConfig
	store Store

	defs         *cache.ReloadCache[Definition]
	instructions *cache.DigestCache[string]
	models       *cache.DigestCache[Model]
	tools        *cache.DigestCache[[]Tool]
	subAgents    *cache.DigestCache[[]string]

	logger observe.Logger

	mu       sync.Mutex
	registry map[string]*Agent
	states   map[string]State
}

// Stats reports registry size and readiness for observability.
type Stats struct {
	// Definitions is the size of the cached definition collection.
	Definitions int

	// Ready is the number of fully materialized agents.
	Ready int

	// Initialized reports whether the first collection load completed.
	Initialized bool
}

// NewComposer creates a new Composer.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Models == nil {
		return nil, ErrNilModelRegistry
	}

	// Apply defaults
	if cfg.Logger == nil {
		cfg.Logger = observe.NewLogger("info")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NewNoopMetrics()
	}

	c := &Composer{
		cfg:      cfg,
		store:    cfg.Store,
		logger:   cfg.Logger.WithCache(observe.CacheMeta{Name: "agent-composer"}),
		registry: make(map[string]*Agent),
		states:   make(map[string]State),
	}

	defs, err := cache.NewReload[Definition](cache.ReloadConfig{
		CheckInterval: cfg.CheckInterval,
		Name:          "agent-definitions",
		EnableLogging: cfg.EnableLogging,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
		Tracer:        cfg.Tracer,
		EscalateAfter: cfg.EscalateAfter,
		Clock:         cfg.Clock,
	}, cfg.Store.CollectionDigest, cfg.Store.ListDefinitions)
	if err != nil {
		return nil, err
	}
	// A collection-level change tears down the registry; agents whose
	// identities survived rebuild lazily on next access.
	defs.OnSwap(c.clearRegistry)
	c.defs = defs

	c.instructions = cache.NewDigest[string](c.fieldCacheConfig("agent-instructions"))
	c.models = cache.NewDigest[Model](c.fieldCacheConfig("agent-models"))
	c.tools = cache.NewDigest[[]Tool](c.fieldCacheConfig("agent-tools"))
	c.subAgents = cache.NewDigest[[]string](c.fieldCacheConfig("agent-subagents"))

	return c, nil
}

func (c *Composer) fieldCacheConfig(name string) cache.DigestConfig {
	return cache.DigestConfig{
		VerifyInterval: c.cfg.VerifyInterval,
		Name:           name,
		EnableLogging:  c.cfg.EnableLogging,
		Logger:         c.cfg.Logger,
		Metrics:        c.cfg.Metrics,
		Clock:          c.cfg.Clock,
	}
}

// Initialize performs the first collection load. Idempotent; a failure is
// fatal since no cached state exists yet.
func (c *Composer) Initialize(ctx context.Context) error {
	return c.defs.Initialize(ctx)
}

// Agent returns the named agent, materializing it on first access after a
// registry miss or invalidation. An identity absent from the collection
// yields ErrAgentNotFound.
func (c *Composer) Agent(ctx context.Context, name string) (*Agent, error) {
	// The throttled collection check runs even on a registry hit, so a
	// changed collection clears the registry before the lookup below.
	if err := c.defs.Sync(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if a, ok := c.registry[name]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	return c.materialize(ctx, name, nil)
}

// materialize builds the named agent, resolving sub-agents through the
// registry. path carries the chain of ancestors currently materializing;
// reaching an ancestor again is a cycle and fails fast.
func (c *Composer) materialize(ctx context.Context, name string, path []string) (*Agent, error) {
	if slices.Contains(path, name) {
		return nil, fmt.Errorf("%w: %s", ErrAgentCycle, strings.Join(append(path, name), " -> "))
	}

	c.mu.Lock()
	if a, ok := c.registry[name]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.states[name] = StateMaterializing
	c.mu.Unlock()

	a, err := c.build(ctx, name, append(path, name))

	c.mu.Lock()
	if err != nil {
		delete(c.states, name)
	} else {
		c.registry[name] = a
		c.states[name] = StateReady
	}
	c.mu.Unlock()

	return a, err
}

// build resolves every field of the named agent through its field cache.
func (c *Composer) build(ctx context.Context, name string, path []string) (*Agent, error) {
	_, ok, err := c.defs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}

	instructions, err := c.instructions.GetVerified(ctx,
		FieldInstructions.CacheKey(name),
		c.fieldDigest(FieldInstructions, name),
		func(ctx context.Context) (string, error) {
			d, err := c.store.Definition(ctx, name)
			return d.Instructions, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("agent: resolving instructions for %q: %w", name, err)
	}

	model, err := c.models.GetVerified(ctx,
		FieldModel.CacheKey(name),
		c.fieldDigest(FieldModel, name),
		func(ctx context.Context) (Model, error) {
			d, err := c.store.Definition(ctx, name)
			if err != nil {
				return nil, err
			}
			return c.cfg.Models.Resolve(d.Model)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("agent: resolving model for %q: %w", name, err)
	}

	tools, err := c.tools.GetVerified(ctx,
		FieldTools.CacheKey(name),
		c.fieldDigest(FieldTools, name),
		func(ctx context.Context) ([]Tool, error) {
			d, err := c.store.Definition(ctx, name)
			if err != nil {
				return nil, err
			}
			return c.resolveTools(ctx, d)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("agent: resolving tools for %q: %w", name, err)
	}

	subNames, err := c.subAgents.GetVerified(ctx,
		FieldSubAgents.CacheKey(name),
		c.fieldDigest(FieldSubAgents, name),
		func(ctx context.Context) ([]string, error) {
			d, err := c.store.Definition(ctx, name)
			return d.SubAgents, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("agent: resolving sub-agents for %q: %w", name, err)
	}

	subs := make([]*Agent, 0, len(subNames))
	for _, sub := range subNames {
		a, err := c.materialize(ctx, sub, path)
		if err != nil {
			return nil, fmt.Errorf("agent: sub-agent %q of %q: %w", sub, name, err)
		}
		subs = append(subs, a)
	}

	return &Agent{
		Name:         name,
		Instructions: instructions,
		Model:        model,
		Tools:        tools,
		SubAgents:    subs,
	}, nil
}

// fieldDigest scopes a digest function to one field of one definition.
func (c *Composer) fieldDigest(kind FieldKind, name string) cache.DigestFunc {
	return func(ctx context.Context) (string, error) {
		return c.store.FieldDigest(ctx, kind, name)
	}
}

// resolveTools merges local registry tools with remote server catalogs.
func (c *Composer) resolveTools(ctx context.Context, def Definition) ([]Tool, error) {
	tools := make([]Tool, 0, len(def.ToolIDs))

	for _, id := range def.ToolIDs {
		if c.cfg.Tools == nil {
			return nil, fmt.Errorf("%w: %q (no tool registry configured)", ErrUnknownTool, id)
		}
		t, err := c.cfg.Tools.Resolve(id)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}

	for _, server := range def.Servers {
		if c.cfg.Servers == nil {
			return nil, fmt.Errorf("agent: definition %q references server %q but no connection cache is configured", def.Name, server)
		}
		defs, err := c.cfg.Servers.Tools(ctx, server)
		if err != nil {
			return nil, fmt.Errorf("agent: listing tools from server %q: %w", server, err)
		}
		for _, td := range defs {
			tools = append(tools, serverTool{server: server, def: td})
		}
	}

	return tools, nil
}

// serverTool adapts a remote tool definition to the Tool interface.
type serverTool struct {
	server string
	def    toolserver.ToolDef
}

func (t serverTool) ToolName() string    { return t.server + "." + t.def.Name }
func (t serverTool) Description() string { return t.def.Description }

// Refresh forces an eager rebuild of the entire registry. A build failure
// of one agent is logged and that agent skipped; the rest of the
// collection still materializes.
func (c *Composer) Refresh(ctx context.Context) error {
	all, err := c.defs.GetAll(ctx)
	if err != nil {
		return err
	}

	c.clearRegistry()

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := c.materialize(ctx, name, nil); err != nil {
			c.logger.Error(ctx, "agent build failed, skipping",
				observe.Field{Key: "agent", Value: name},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	return nil
}

// Invalidate removes the named agent from the registry and evicts all of
// its field cache entries. The agent rebuilds lazily on next access.
func (c *Composer) Invalidate(name string) {
	c.mu.Lock()
	delete(c.registry, name)
	delete(c.states, name)
	c.mu.Unlock()

	c.instructions.Delete(FieldInstructions.CacheKey(name))
	c.models.Delete(FieldModel.CacheKey(name))
	c.tools.Delete(FieldTools.CacheKey(name))
	c.subAgents.Delete(FieldSubAgents.CacheKey(name))
}

// State returns the materialization state of the named agent.
func (c *Composer) State(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registry[name]; ok {
		return StateReady
	}
	return c.states[name]
}

// Stats exposes registry size and readiness.
func (c *Composer) Stats() Stats {
	c.mu.Lock()
	ready := len(c.registry)
	c.mu.Unlock()

	return Stats{
		Definitions: c.defs.Len(),
		Ready:       ready,
		Initialized: c.defs.Initialized(),
	}
}

// Checker returns a health checker reporting composer readiness.
func (c *Composer) Checker() health.Checker {
	return health.NewCheckerFunc("agent-composer", func(ctx context.Context) health.Result {
		s := c.Stats()
		if !s.Initialized {
			return health.Unhealthy("composer not initialized", health.ErrNotInitialized)
		}
		return health.Healthy("composer ready").WithDetails(map[string]any{
			"definitions":  s.Definitions,
			"agents_ready": s.Ready,
		})
	})
}

// Close releases the definition collection and all field caches.
func (c *Composer) Close() {
	c.defs.Close()
	c.instructions.Flush()
	c.models.Flush()
	c.tools.Flush()
	c.subAgents.Flush()
	c.clearRegistry()
}

// clearRegistry tears down all materialized agents. Registered as the
// collection-swap callback: identities that disappeared from the reloaded
// set never come back, the rest rebuild lazily.
func (c *Composer) clearRegistry() {
	c.mu.Lock()
	c.registry = make(map[string]*Agent)
	c.states = make(map[string]State)
	c.mu.Unlock()
}
