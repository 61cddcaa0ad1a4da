// Package session manages anonymization sessions: the token mappings,
// entity relationships, and preserved context that keep token assignment
// stable across calls.
//
// Storage is two-tier: a write-through in-process cache (Manager) over a
// pluggable Store. Mutation of a single session is serialized by a
// per-session lock; different sessions are fully independent. Sessions are
// never deleted implicitly.
package session
