// Package entity defines the graph data model of the lattice engine.
//
// The model has three record shapes:
//
//   - Entity: a deduplicated real-world value (an email address, a phone
//     number, a domain, ...). Entities are identified by a deterministic
//     hash of their (scope, normalized value) pair, created on first
//     observation, never deleted, and mutated only by merging provenance.
//   - SourceRecord: one atomic result returned by a single provider call
//     (one breach hit, one registry lookup). The unit of "same breach
//     record" comparison.
//   - Edge: a directed relation between records and entities. Every edge
//     carries a verification status, a primary connection reason from a
//     closed taxonomy, and - while UNVERIFIED - a query sequence tag.
//
// The verification status is write-once-upgradable: an edge or record may
// transition from UNVERIFIED to VERIFIED, never the reverse. The graph
// package enforces this at the repository boundary.
//
// Entity types are partitioned into weak and strong specificity classes.
// The partition is a static, closed table (see Strength) so the type-pair
// verification decision is exhaustively testable.
package entity
