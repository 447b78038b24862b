package agent

import (
	"time"

	"github.com/jonwraymond/agentcache/cache"
)

// ModelSpec identifies a language-model binding in a definition.
type ModelSpec struct {
	// Provider is the model provider identifier, e.g. "openai".
	Provider string

	// Name is the provider-scoped model name, e.g. "gpt-4o-mini".
	Name string

	// MaxTokens caps the model output. Zero means provider default.
	MaxTokens int

	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64
}

// Definition is an agent configuration record as held by the authoritative
// store.
type Definition struct {
	// Name is the agent identity, unique within the collection.
	Name string

	// Instructions is the textual instruction body.
	Instructions string

	// Model is the language-model binding.
	Model ModelSpec

	// ToolIDs names tools from the local tool registry.
	ToolIDs []string

	// Servers names remote tool servers whose catalogs the agent uses.
	Servers []string

	// SubAgents names other definitions in the same collection.
	SubAgents []string

	// UpdatedAt is the store's last-modified timestamp for this record.
	UpdatedAt time.Time
}

// Digest returns a deterministic digest of the whole definition, derived
// from identity, mutable attributes, and the last-modified timestamp.
func (d Definition) Digest() (string, error) {
	return cache.DigestOf(
		d.Name,
		d.Instructions,
		d.Model.Provider, d.Model.Name, d.Model.MaxTokens, d.Model.Temperature,
		d.ToolIDs,
		d.Servers,
		d.SubAgents,
		d.UpdatedAt.UnixNano(),
	)
}

// FieldDigest returns a digest scoped to a single field's source data, so
// a change to one field does not invalidate the others.
func (d Definition) FieldDigest(kind FieldKind) (string, error) {
	switch kind {
	case FieldInstructions:
		return cache.DigestOf(d.Name, d.Instructions)
	case FieldModel:
		return cache.DigestOf(d.Name, d.Model.Provider, d.Model.Name, d.Model.MaxTokens, d.Model.Temperature)
	case FieldTools:
		return cache.DigestOf(d.Name, d.ToolIDs, d.Servers)
	case FieldSubAgents:
		return cache.DigestOf(d.Name, d.SubAgents)
	default:
		return "", kind.validate()
	}
}

// FieldKind enumerates the independently cached fields of an agent.
// The set is closed: an unknown kind is a construction-time error, never a
// silently skipped string key.
type FieldKind int

const (
	FieldInstructions FieldKind = iota
	FieldModel
	FieldTools
	FieldSubAgents
)

// fieldKinds lists every valid FieldKind, in cache-key prefix order.
var fieldKinds = [...]FieldKind{FieldInstructions, FieldModel, FieldTools, FieldSubAgents}

func (k FieldKind) String() string {
	switch k {
	case FieldInstructions:
		return "instructions"
	case FieldModel:
		return "model"
	case FieldTools:
		return "tools"
	case FieldSubAgents:
		return "subagents"
	default:
		return "unknown"
	}
}

// CacheKey returns the cache key for this field of the named agent.
// Format: <kind>:<name>
func (k FieldKind) CacheKey(name string) string {
	return k.String() + ":" + name
}

func (k FieldKind) validate() error {
	for _, v := range fieldKinds {
		if k == v {
			return nil
		}
	}
	return ErrUnknownFieldKind
}
