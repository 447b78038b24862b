package cache

import (
	"context"
	"strings"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Loader produces a fresh value for a single key.
//
// Contract:
// - May fail; a failure is propagated to the reader and nothing is cached.
// - Side effects are tolerated but not required.
type Loader[T any] func(ctx context.Context, key string) (T, error)

// CollectionLoader produces the full authoritative set of values.
//
// Contract:
// - A failure aborts the reload; the previously loaded set is retained.
type CollectionLoader[T any] func(ctx context.Context) (map[string]T, error)

// DigestFunc computes a cheap, deterministic summary of store state.
//
// Contract:
// - Must be cheap relative to the corresponding loader.
// - Equal digests imply (with high probability) equal underlying state.
// - Must be a pure function of store state.
type DigestFunc func(ctx context.Context) (string, error)

// ChangeDetector reports whether state behind a key changed since the last
// call. The first-ever call conventionally reports true so the initial load
// always happens; that is detector-side bootstrap behavior, preserved here
// by passing the result through unmodified.
type ChangeDetector func(ctx context.Context, key string) (bool, error)

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
