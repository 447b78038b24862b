// Package cache provides the multi-tier caching primitives used to keep
// externally-stored configuration in memory: a generic single-key TTL cache,
// a digest-gated whole-collection reload cache, a two-tier change-gated
// cache, and a hash-verified per-key cache.
//
// All tiers are parameterized by caller-supplied loader, digest, and
// change-detector functions; the package itself performs no I/O.
package cache
