package toolserver

import (
	"context"
	"encoding/json"
)

// ToolDef describes a tool exposed by a remote server.
type ToolDef struct {
	// Name is the server-scoped tool identifier.
	Name string `json:"name"`

	// Description is the human-readable tool description.
	Description string `json:"description"`

	// InputSchema is the tool's JSON-schema input contract, passed
	// through verbatim.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Conn is a live connection to a remote tool server.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Close must be idempotent.
type Conn interface {
	// ServerName returns the configured server name.
	ServerName() string

	// ListTools returns the server's current tool catalog.
	ListTools(ctx context.Context) ([]ToolDef, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Dialer establishes a connection to a server. The wire protocol (SSE,
// streamable HTTP, stdio) is the dialer's business.
type Dialer func(ctx context.Context, cfg ServerConfig) (Conn, error)
