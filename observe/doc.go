// Package observe provides observability primitives for cache operations.
//
// It is a pure instrumentation library: no caching, no storage, no I/O
// beyond exporter setup. Consumers wire the observer into cache instances
// and the composer at construction time.
package observe
