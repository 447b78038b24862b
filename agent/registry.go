package agent

import "fmt"

// Model is a resolved language-model binding. How the model actually
// executes is the provider's business.
type Model interface {
	// Provider returns the provider identifier.
	Provider() string

	// ModelName returns the provider-scoped model name.
	ModelName() string
}

// ModelFactory builds a Model from a spec.
type ModelFactory func(spec ModelSpec) (Model, error)

// ModelRegistry is a closed registry of model providers. The provider set
// is validated at construction and immutable afterwards, so an unknown
// provider identifier fails at build time rather than being silently
// skipped at runtime.
type ModelRegistry struct {
	factories map[string]ModelFactory
}

// NewModelRegistry creates a registry from a fixed provider set.
func NewModelRegistry(factories map[string]ModelFactory) (*ModelRegistry, error) {
	if len(factories) == 0 {
		return nil, ErrEmptyRegistry
	}

	m := make(map[string]ModelFactory, len(factories))
	for provider, factory := range factories {
		if provider == "" || factory == nil {
			return nil, fmt.Errorf("agent: invalid model registry entry %q", provider)
		}
		m[provider] = factory
	}
	return &ModelRegistry{factories: m}, nil
}

// Resolve builds the model binding for a spec.
func (r *ModelRegistry) Resolve(spec ModelSpec) (Model, error) {
	factory, ok := r.factories[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, spec.Provider)
	}
	return factory(spec)
}

// Providers returns the registered provider identifiers.
func (r *ModelRegistry) Providers() []string {
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	return out
}

// Tool is a resolved tool binding. How the tool performs its action is the
// tool's business.
type Tool interface {
	// ToolName returns the tool identifier.
	ToolName() string

	// Description returns the human-readable tool description.
	Description() string
}

// ToolRegistry is a closed registry of locally implemented tools,
// validated at construction like ModelRegistry.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates a registry from a fixed tool set.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	if len(tools) == 0 {
		return nil, ErrEmptyRegistry
	}

	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t == nil || t.ToolName() == "" {
			return nil, fmt.Errorf("agent: invalid tool registry entry")
		}
		if _, dup := m[t.ToolName()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntry, t.ToolName())
		}
		m[t.ToolName()] = t
	}
	return &ToolRegistry{tools: m}, nil
}

// Resolve returns the tool for id.
func (r *ToolRegistry) Resolve(id string) (Tool, error) {
	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, id)
	}
	return t, nil
}

// Names returns the registered tool identifiers.
func (r *ToolRegistry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}
