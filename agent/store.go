package agent

import "context"

// Store is the authoritative-store boundary. Its schema and query
// mechanics are the store's business; the composer only needs the full
// collection, single records, and cheap digests.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Digests: must be deterministic given unchanged store state and cheap
//   relative to the corresponding fetch.
// - Errors: fetch failures propagate; digest failures are tolerated by the
//   caching layer, which keeps serving the previous state.
type Store interface {
	// ListDefinitions returns the full authoritative collection keyed by
	// agent name.
	ListDefinitions(ctx context.Context) (map[string]Definition, error)

	// Definition returns a single record by name.
	Definition(ctx context.Context, name string) (Definition, error)

	// CollectionDigest summarizes the whole collection.
	CollectionDigest(ctx context.Context) (string, error)

	// FieldDigest summarizes one field of one record.
	FieldDigest(ctx context.Context, kind FieldKind, name string) (string, error)
}
