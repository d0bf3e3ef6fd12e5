// Package classify decides whether a connection between two entities is
// VERIFIED or UNVERIFIED evidence and names the reasons behind it.
//
// The verification decision is evaluated in order, first match wins:
//
//  1. Both entities came from the same source record: VERIFIED.
//  2. Either entity's type is weak: UNVERIFIED.
//  3. Both entities' types are strong: VERIFIED.
//  4. Anything else: UNVERIFIED (conservative default).
//
// Reason detection runs through four ordered tiers (identity match,
// pattern heuristics, contextual evidence, fallback). Multiple reasons may
// match; the first becomes the primary and the rest are kept in order as
// additional reasons. The fallback tier always matches, so classification
// never returns an empty reason list.
//
// Sequence tags for UNVERIFIED connections are minted by the TagAllocator:
// suffixes are monotonic and gap-free per base value, starting at 1.
package classify
