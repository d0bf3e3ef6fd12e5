// Package cascade implements verification cascade promotion.
//
// An UNVERIFIED entity earns promotion when some source record shows it
// co-occurring with VERIFIED evidence: another entity in the same record
// that either carries a VERIFIED edge to that record or is itself
// VERIFIED. The check runs immediately after the UNVERIFIED entity has
// been searched and its new results persisted - never before, since the
// corroborating evidence may itself be new.
//
// The checker only authorizes; the graph repository performs the actual
// upgrade under its no-downgrade contract. Store errors fail closed: a
// failed check never promotes, and the entity is re-evaluated on its next
// natural dispatch opportunity.
package cascade
