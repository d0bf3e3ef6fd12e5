// Package investigate drives recursive entity expansion.
//
// A Controller starts from seed values, dispatches lookups through the
// provider layer, persists every result into the graph repository, and
// decides what to search next. Scheduling is priority-ordered:
//
//   - SEED: seed entities are persisted as trusted evidence at depth zero.
//   - DRAIN_VERIFIED: the verified worklist drains first, newest discovery
//     first, with dispatches inside the tier running concurrently.
//   - DRAIN_UNVERIFIED: with no verified work left, the lowest-numbered
//     unverified entity is searched, one at a time.
//   - CASCADE: after results land, unverified entities that now co-occur
//     with verified evidence are promoted and re-enter the verified
//     worklist, preempting further unverified drains.
//   - DONE: no dispatchable entity remains within the depth ceiling.
//
// Unverified entities are searched once and then go dormant unless the
// requeue option grants them a second pass. A provider failure never
// invents evidence: the dispatch is logged and contributes zero entities.
package investigate
