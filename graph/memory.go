package graph

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/identity"
)

// lockStripes is the size of the identity-scoped lock table.
const lockStripes = 64

// MemoryStore is an in-process Store: an arena of nodes addressed by
// identity hash with adjacency lists, so the cyclic entity/record graph
// never relies on language references. Writes to a given identity key are
// serialized through a striped lock table.
type MemoryStore struct {
	logger *slog.Logger

	mu       sync.RWMutex
	entities map[string]*entity.Entity
	records  map[string]*entity.SourceRecord
	edges    map[string]*entity.Edge
	out      map[string][]string // node ID -> ordered outgoing edge keys
	order    []string            // entity insertion order
	searched map[string]bool

	stripes [lockStripes]sync.Mutex
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryLogger sets the structured logger used for invariant-violation
// logging. Defaults to slog.Default().
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = l }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		logger:   slog.Default(),
		entities: make(map[string]*entity.Entity),
		records:  make(map[string]*entity.SourceRecord),
		edges:    make(map[string]*entity.Edge),
		out:      make(map[string][]string),
		searched: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stripe returns the identity-scoped lock for a key.
func (s *MemoryStore) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.stripes[h.Sum32()%lockStripes]
}

// UpsertEntity persists an entity, merging provenance on collision.
func (s *MemoryStore) UpsertEntity(_ context.Context, e *entity.Entity) (*entity.Entity, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	lock := s.stripe(e.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[e.ID]
	if !ok {
		clone := cloneEntity(e)
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		s.entities[e.ID] = clone
		s.order = append(s.order, e.ID)
		return cloneEntity(clone), nil
	}

	if existing.Type != e.Type {
		s.logger.Warn("entity type conflict on upsert, keeping original",
			"id", e.ID, "existing_type", existing.Type, "incoming_type", e.Type)
		return cloneEntity(existing), fmt.Errorf("%w: %s vs %s", ErrTypeConflict, existing.Type, e.Type)
	}

	existing.Sources = append(existing.Sources, e.Sources...)
	// A direct observation clears the inferred flag; an inferred duplicate
	// of a direct observation adds provenance only.
	if !e.Inferred {
		existing.Inferred = false
	}
	return cloneEntity(existing), nil
}

// UpsertRecord persists a record once; later upserts may only upgrade the
// record's own verification tag.
func (s *MemoryStore) UpsertRecord(_ context.Context, r *entity.SourceRecord) (*entity.SourceRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	lock := s.stripe(r.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[r.ID]
	if !ok {
		clone := cloneRecord(r)
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		s.records[r.ID] = clone
		return cloneRecord(clone), nil
	}

	if !existing.Status.CanTransitionTo(r.Status) {
		s.logger.Warn("record status downgrade rejected",
			"record", r.ID, "stored", existing.Status, "incoming", r.Status)
		return cloneRecord(existing), nil
	}
	if existing.Status != r.Status {
		existing.Status = r.Status
		existing.Reason = r.Reason
	}
	return cloneRecord(existing), nil
}

// UpsertEdge persists an edge and its inverse under the no-downgrade rule.
func (s *MemoryStore) UpsertEdge(_ context.Context, e *entity.Edge) (*entity.Edge, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	lock := s.stripe(e.Key())
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.upsertEdgeLocked(e)

	// Mentions and found_in always travel as a pair with identical tag
	// state. Mirror the stored edge, not the input, so a rejected
	// downgrade stays rejected on both directions.
	if e.Kind == entity.Mentions || e.Kind == entity.FoundIn {
		inverse := *stored
		inverse.FromID, inverse.ToID = stored.ToID, stored.FromID
		inverse.Kind = stored.Kind.Inverse()
		s.upsertEdgeLocked(&inverse)
	}

	return cloneEdge(stored), nil
}

// upsertEdgeLocked writes one edge under s.mu.
func (s *MemoryStore) upsertEdgeLocked(e *entity.Edge) *entity.Edge {
	key := e.Key()
	existing, ok := s.edges[key]
	if !ok {
		clone := *e
		s.edges[key] = &clone
		s.out[e.FromID] = append(s.out[e.FromID], key)
		return &clone
	}

	if !existing.Status.CanTransitionTo(e.Status) {
		s.logger.Warn("edge status downgrade rejected",
			"edge", key, "stored", existing.Status, "incoming", e.Status)
		return existing
	}

	if existing.Status == entity.Unverified && e.Status == entity.Verified {
		existing.Status = entity.Verified
		existing.SequenceTag = ""
		existing.Reason = e.Reason
		existing.AdditionalReasons = append([]entity.ConnectionReason(nil), e.AdditionalReasons...)
	}
	if e.AlreadySearched {
		existing.AlreadySearched = true
	}
	return existing
}

// GetEntity fetches an entity by ID.
func (s *MemoryStore) GetEntity(_ context.Context, id string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return cloneEntity(e), nil
}

// GetRecord fetches a source record by ID.
func (s *MemoryStore) GetRecord(_ context.Context, id string) (*entity.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	return cloneRecord(r), nil
}

// EdgesFrom returns all edges originating at a node.
func (s *MemoryStore) EdgesFrom(_ context.Context, id string) ([]*entity.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesFromLocked(id), nil
}

func (s *MemoryStore) edgesFromLocked(id string) []*entity.Edge {
	keys := s.out[id]
	edges := make([]*entity.Edge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, cloneEdge(s.edges[k]))
	}
	return edges
}

// EntityStatus derives an entity's status from its found_in edges.
func (s *MemoryStore) EntityStatus(_ context.Context, id string) (entity.VerificationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entities[id]; !ok {
		return "", fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return s.entityStatusLocked(id), nil
}

func (s *MemoryStore) entityStatusLocked(id string) entity.VerificationStatus {
	for _, k := range s.out[id] {
		e := s.edges[k]
		if e.Kind == entity.FoundIn && e.Status == entity.Verified {
			return entity.Verified
		}
	}
	return entity.Unverified
}

// UnsearchedVerified returns undispatched VERIFIED entities in insertion
// order.
func (s *MemoryStore) UnsearchedVerified(_ context.Context) ([]*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Entity
	for _, id := range s.order {
		if s.searched[id] {
			continue
		}
		if s.entityStatusLocked(id) == entity.Verified {
			out = append(out, cloneEntity(s.entities[id]))
		}
	}
	return out, nil
}

// UnsearchedUnverified returns undispatched UNVERIFIED entities with their
// tags, lowest suffix first, insertion order breaking ties.
func (s *MemoryStore) UnsearchedUnverified(_ context.Context) ([]TaggedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		te     TaggedEntity
		suffix int
		pos    int
	}
	var cands []candidate

	for pos, id := range s.order {
		if s.searched[id] {
			continue
		}
		if s.entityStatusLocked(id) == entity.Verified {
			continue
		}
		tag, suffix, ok := s.lowestTagLocked(id)
		if !ok {
			continue
		}
		cands = append(cands, candidate{
			te:     TaggedEntity{Entity: cloneEntity(s.entities[id]), Tag: tag},
			suffix: suffix,
			pos:    pos,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].suffix != cands[j].suffix {
			return cands[i].suffix < cands[j].suffix
		}
		return cands[i].pos < cands[j].pos
	})

	out := make([]TaggedEntity, len(cands))
	for i, c := range cands {
		out[i] = c.te
	}
	return out, nil
}

// lowestTagLocked finds the entity's lowest-suffix sequence tag across its
// UNVERIFIED found_in edges.
func (s *MemoryStore) lowestTagLocked(id string) (string, int, bool) {
	best := ""
	bestN := 0
	for _, k := range s.out[id] {
		e := s.edges[k]
		if e.Kind != entity.FoundIn || e.Status != entity.Unverified || e.SequenceTag == "" {
			continue
		}
		_, n, err := entity.ParseSequenceTag(e.SequenceTag)
		if err != nil {
			continue
		}
		if best == "" || n < bestN {
			best, bestN = e.SequenceTag, n
		}
	}
	return best, bestN, best != ""
}

// RecordsMentioning returns the records carrying a mentions edge to the
// entity.
func (s *MemoryStore) RecordsMentioning(_ context.Context, entityID string) ([]*entity.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.SourceRecord
	for _, k := range s.out[entityID] {
		e := s.edges[k]
		if e.Kind != entity.FoundIn {
			continue
		}
		if r, ok := s.records[e.ToID]; ok {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

// CoOccurring returns every entity sharing a source record with the given
// one.
func (s *MemoryStore) CoOccurring(_ context.Context, entityID string) ([]*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*entity.Entity
	for _, k := range s.out[entityID] {
		fe := s.edges[k]
		if fe.Kind != entity.FoundIn {
			continue
		}
		for _, rk := range s.out[fe.ToID] {
			me := s.edges[rk]
			if me.Kind != entity.Mentions || me.ToID == entityID || seen[me.ToID] {
				continue
			}
			if other, ok := s.entities[me.ToID]; ok {
				seen[me.ToID] = true
				out = append(out, cloneEntity(other))
			}
		}
	}
	return out, nil
}

// TagSuffixes returns the highest persisted sequence-tag suffix per base.
func (s *MemoryStore) TagSuffixes(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, e := range s.edges {
		if e.SequenceTag == "" {
			continue
		}
		base, n, err := entity.ParseSequenceTag(e.SequenceTag)
		if err != nil {
			continue
		}
		if n > out[base] {
			out[base] = n
		}
	}
	return out, nil
}

// MarkSearched flags an entity as dispatched.
func (s *MemoryStore) MarkSearched(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityID]; !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, entityID)
	}
	s.searched[entityID] = true
	s.setSearchedLocked(entityID, true)
	return nil
}

// setSearchedLocked mirrors the searched flag onto the entity's edges.
func (s *MemoryStore) setSearchedLocked(entityID string, searched bool) {
	for _, k := range s.out[entityID] {
		e := s.edges[k]
		if e.Kind != entity.FoundIn {
			continue
		}
		e.AlreadySearched = searched
		if inv, ok := s.edges[(&entity.Edge{FromID: e.ToID, ToID: e.FromID, Kind: e.Kind.Inverse()}).Key()]; ok {
			inv.AlreadySearched = searched
		}
	}
}

// Upgrade promotes an entity to VERIFIED: edges flip, tags clear, and the
// searched flag resets so the entity re-enters the VERIFIED worklist.
func (s *MemoryStore) Upgrade(_ context.Context, entityID string) error {
	lock := s.stripe(entityID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[entityID]; !ok {
		return fmt.Errorf("%w: entity %s", ErrNotFound, entityID)
	}

	for _, k := range s.out[entityID] {
		e := s.edges[k]
		if e.Kind != entity.FoundIn {
			continue
		}
		s.promoteEdgeLocked(e)
		if inv, ok := s.edges[(&entity.Edge{FromID: e.ToID, ToID: e.FromID, Kind: e.Kind.Inverse()}).Key()]; ok {
			s.promoteEdgeLocked(inv)
		}
	}

	s.searched[entityID] = false
	s.setSearchedLocked(entityID, false)
	return nil
}

// promoteEdgeLocked flips one edge to VERIFIED and clears its tag.
func (s *MemoryStore) promoteEdgeLocked(e *entity.Edge) {
	if e.Status == entity.Verified {
		return
	}
	e.Status = entity.Verified
	e.SequenceTag = ""
	e.AlreadySearched = false
}

// EntityIDFor is a convenience wrapper deriving an identity-key entity ID.
func EntityIDFor(scope, value string) string {
	return identity.ForEntity(scope, value)
}

func cloneEntity(e *entity.Entity) *entity.Entity {
	clone := *e
	clone.Sources = append([]entity.Provenance(nil), e.Sources...)
	return &clone
}

func cloneRecord(r *entity.SourceRecord) *entity.SourceRecord {
	clone := *r
	if r.Raw != nil {
		clone.Raw = make(map[string]string, len(r.Raw))
		for k, v := range r.Raw {
			clone.Raw[k] = v
		}
	}
	return &clone
}

func cloneEdge(e *entity.Edge) *entity.Edge {
	clone := *e
	clone.AdditionalReasons = append([]entity.ConnectionReason(nil), e.AdditionalReasons...)
	return &clone
}
