// Package graph owns persistence of the entity graph: idempotent
// upsert-with-merge for entities and source records, edge writes under the
// no-downgrade rule, and the query shapes the controller and cascade
// checker need.
//
// Two Store implementations are provided:
//
//   - MemoryStore: an in-process arena keyed by identity hash with
//     adjacency sets and identity-scoped lock striping. Used for embedded
//     runs and tests.
//   - RedisStore: a Redis-backed store using hashes and sets, with WATCH
//     based compare-and-swap on edge status so concurrent dispatches
//     cannot race past the downgrade guard.
//
// Invariants enforced here, not in callers:
//
//   - Entity identity is a pure function of (scope, normalized value):
//     upserting a known entity merges provenance, never duplicates.
//   - verification_status never downgrades once VERIFIED. A downgrade
//     attempt is rejected, logged, and the prior value retained.
//   - Every mentions edge has a found_in inverse with the same tag state.
//   - UNVERIFIED edges carry a sequence tag, VERIFIED edges do not.
package graph
