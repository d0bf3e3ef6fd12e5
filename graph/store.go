package graph

import (
	"context"
	"errors"

	"github.com/lattice-osint/engine/entity"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a requested node does not exist.
	ErrNotFound = errors.New("graph: node not found")

	// ErrInvalidNode is returned when a node fails structural validation
	// before persistence.
	ErrInvalidNode = errors.New("graph: invalid node")

	// ErrStorageFailed is returned when the backing store fails. The
	// underlying error is wrapped for context.
	ErrStorageFailed = errors.New("graph: storage operation failed")

	// ErrTypeConflict is returned when an upsert collides with an existing
	// entity of the same identity but a conflicting type. The original
	// entity is preserved.
	ErrTypeConflict = errors.New("graph: identity collision with conflicting type")
)

// TaggedEntity pairs an UNVERIFIED entity with its current query sequence
// tag, as stored on its edges.
type TaggedEntity struct {
	Entity *entity.Entity
	Tag    string
}

// Store is the graph repository consumed by the controller and the cascade
// checker. Implementations must be safe for concurrent writers: two
// dispatches that discover the same entity concurrently must serialize on
// its identity key, so the no-downgrade guard cannot be raced past.
type Store interface {
	// UpsertEntity persists an entity idempotently by identity key. On
	// collision the existing node is kept and the new observation's
	// provenance is appended; value, scope and type are immutable. A
	// collision with a conflicting type returns ErrTypeConflict and
	// preserves the original.
	UpsertEntity(ctx context.Context, e *entity.Entity) (*entity.Entity, error)

	// UpsertRecord persists a source record idempotently by identity key.
	// Records are immutable after creation except for their verification
	// tag, which follows the no-downgrade rule: an attempt to replace
	// VERIFIED with UNVERIFIED keeps the prior tag.
	UpsertRecord(ctx context.Context, r *entity.SourceRecord) (*entity.SourceRecord, error)

	// UpsertEdge persists an edge and its mandatory inverse (for
	// mentions/found_in) under the no-downgrade rule. A downgrade attempt
	// is rejected and logged, and the stored edge is returned unchanged.
	// An upgrade (UNVERIFIED to VERIFIED) clears the sequence tag.
	UpsertEdge(ctx context.Context, e *entity.Edge) (*entity.Edge, error)

	// GetEntity fetches an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*entity.Entity, error)

	// GetRecord fetches a source record by ID. Returns ErrNotFound if absent.
	GetRecord(ctx context.Context, id string) (*entity.SourceRecord, error)

	// EdgesFrom returns all edges originating at the given node.
	EdgesFrom(ctx context.Context, id string) ([]*entity.Edge, error)

	// EntityStatus derives an entity's verification status from its
	// found_in edges: VERIFIED if any such edge is VERIFIED.
	EntityStatus(ctx context.Context, id string) (entity.VerificationStatus, error)

	// UnsearchedVerified returns every entity carrying at least one
	// VERIFIED found_in edge that has not yet been dispatched, in
	// insertion order (the controller reorders into its worklist).
	UnsearchedVerified(ctx context.Context) ([]*entity.Entity, error)

	// UnsearchedUnverified returns every undispatched entity whose
	// found_in edges are all UNVERIFIED, with its sequence tag, ordered
	// by ascending tag suffix then insertion order.
	UnsearchedUnverified(ctx context.Context) ([]TaggedEntity, error)

	// RecordsMentioning returns every source record with a mentions edge
	// to the given entity.
	RecordsMentioning(ctx context.Context, entityID string) ([]*entity.SourceRecord, error)

	// CoOccurring returns every entity that shares at least one source
	// record with the given entity.
	CoOccurring(ctx context.Context, entityID string) ([]*entity.Entity, error)

	// TagSuffixes returns the highest persisted sequence-tag suffix per
	// tag base, so a new run over an existing graph continues each
	// sequence instead of reusing suffixes.
	TagSuffixes(ctx context.Context) (map[string]int, error)

	// MarkSearched records that an entity has been dispatched, setting
	// already_searched on its found_in/mentions edges.
	MarkSearched(ctx context.Context, entityID string) error

	// Upgrade promotes an entity to VERIFIED: every found_in and mentions
	// edge touching it transitions to VERIFIED, sequence tags are cleared,
	// and already_searched is reset so the entity becomes eligible for a
	// fresh VERIFIED-priority dispatch.
	Upgrade(ctx context.Context, entityID string) error
}
