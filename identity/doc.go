// Package identity creates deterministic, content-addressable IDs for
// graph nodes.
//
// Entity IDs are derived from the (scope, normalized value) pair and
// source record IDs from the (provider, dataset, result id) triple, so the
// same observation always maps to the same node regardless of which
// dispatch produced it. IDs are stable across investigations, collision
// resistant, and human-readable (they carry a kind prefix).
//
// ID format: {kind}:{base64url(sha256(canonical)[:12])}
package identity
