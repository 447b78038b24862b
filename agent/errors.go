package agent

import "errors"

// Construction errors.
var (
	// ErrNilStore indicates no Store was provided.
	ErrNilStore = errors.New("agent: store is nil")

	// ErrNilModelRegistry indicates no model registry was provided.
	ErrNilModelRegistry = errors.New("agent: model registry is nil")

	// ErrEmptyRegistry indicates a capability registry was built with no entries.
	ErrEmptyRegistry = errors.New("agent: registry has no entries")

	// ErrDuplicateEntry indicates a capability registry was built with a
	// duplicate identifier.
	ErrDuplicateEntry = errors.New("agent: duplicate registry entry")
)

// Resolution errors.
var (
	// ErrAgentNotFound indicates the requested agent does not exist in the
	// definition collection. Distinguishes "does not exist" from a
	// transient fetch failure.
	ErrAgentNotFound = errors.New("agent: not found")

	// ErrAgentCycle indicates a cycle in the sub-agent graph.
	ErrAgentCycle = errors.New("agent: sub-agent cycle detected")

	// ErrUnknownProvider indicates a model spec names a provider absent
	// from the model registry.
	ErrUnknownProvider = errors.New("agent: unknown model provider")

	// ErrUnknownTool indicates a definition names a tool absent from the
	// tool registry.
	ErrUnknownTool = errors.New("agent: unknown tool")

	// ErrUnknownFieldKind indicates a FieldKind outside the closed set.
	ErrUnknownFieldKind = errors.New("agent: unknown field kind")
)
