// Package agent composes runnable agents from independently cached parts.
//
// Agent definitions live in an authoritative external store reached through
// the Store interface. The Composer keeps the definition collection in a
// digest-gated reload cache and resolves each agent field (instructions,
// model binding, tool set, sub-agents) through its own hash-verified cache,
// so a change to one field never forces recomputation of the others.
package agent
