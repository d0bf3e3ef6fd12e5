package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lattice-osint/engine/entity"
)

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// Prefix namespaces every key. Defaults to "lattice".
	Prefix string

	// ConnectTimeout is the maximum time to wait for connection
	// establishment.
	ConnectTimeout time.Duration

	// Logger is the structured logger for invariant-violation logging.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// RedisStore implements Store on Redis. Nodes are JSON values, adjacency
// is kept in per-node lists, and edge/record status writes go through
// WATCH-based transactions so concurrent dispatches serialize on the
// identity key instead of racing past the downgrade guard.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "lattice"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, logger: opts.Logger, prefix: opts.Prefix}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) entityKey(id string) string { return s.key("node", id) }
func (s *RedisStore) recordKey(id string) string { return s.key("node", id) }
func (s *RedisStore) edgeKey(ek string) string   { return s.key("edge", ek) }
func (s *RedisStore) outKey(id string) string    { return s.key("out", id) }
func (s *RedisStore) entityListKey() string      { return s.key("entities") }
func (s *RedisStore) searchedKey() string        { return s.key("searched") }

// UpsertEntity persists an entity under WATCH, merging provenance on
// collision.
func (s *RedisStore) UpsertEntity(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	key := s.entityKey(e.ID)
	var result *entity.Entity
	var typeConflict error

	txn := func(tx *redis.Tx) error {
		existing, err := getJSON[entity.Entity](ctx, tx, key)
		if err != nil {
			return err
		}

		var merged entity.Entity
		switch {
		case existing == nil:
			merged = *e
			if merged.CreatedAt.IsZero() {
				merged.CreatedAt = time.Now()
			}
		case existing.Type != e.Type:
			s.logger.Warn("entity type conflict on upsert, keeping original",
				"id", e.ID, "existing_type", existing.Type, "incoming_type", e.Type)
			result = existing
			typeConflict = fmt.Errorf("%w: %s vs %s", ErrTypeConflict, existing.Type, e.Type)
			return nil
		default:
			merged = *existing
			merged.Sources = append(merged.Sources, e.Sources...)
			if !e.Inferred {
				merged.Inferred = false
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := setJSON(ctx, pipe, key, &merged); err != nil {
				return err
			}
			if existing == nil {
				pipe.RPush(ctx, s.entityListKey(), e.ID)
			}
			return nil
		})
		result = &merged
		return err
	}

	if err := s.watchRetry(ctx, txn, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if typeConflict != nil {
		return result, typeConflict
	}
	return result, nil
}

// UpsertRecord persists a record; the only mutation allowed afterwards is
// a tag upgrade.
func (s *RedisStore) UpsertRecord(ctx context.Context, r *entity.SourceRecord) (*entity.SourceRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	key := s.recordKey(r.ID)
	var result *entity.SourceRecord

	txn := func(tx *redis.Tx) error {
		existing, err := getJSON[entity.SourceRecord](ctx, tx, key)
		if err != nil {
			return err
		}

		var merged entity.SourceRecord
		switch {
		case existing == nil:
			merged = *r
			if merged.CreatedAt.IsZero() {
				merged.CreatedAt = time.Now()
			}
		case !existing.Status.CanTransitionTo(r.Status):
			s.logger.Warn("record status downgrade rejected",
				"record", r.ID, "stored", existing.Status, "incoming", r.Status)
			result = existing
			return nil
		default:
			merged = *existing
			if merged.Status != r.Status {
				merged.Status = r.Status
				merged.Reason = r.Reason
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return setJSON(ctx, pipe, key, &merged)
		})
		result = &merged
		return err
	}

	if err := s.watchRetry(ctx, txn, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return result, nil
}

// UpsertEdge persists an edge and its inverse under the no-downgrade rule.
func (s *RedisStore) UpsertEdge(ctx context.Context, e *entity.Edge) (*entity.Edge, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	stored, err := s.upsertOneEdge(ctx, e)
	if err != nil {
		return nil, err
	}

	if e.Kind == entity.Mentions || e.Kind == entity.FoundIn {
		inverse := *stored
		inverse.FromID, inverse.ToID = stored.ToID, stored.FromID
		inverse.Kind = stored.Kind.Inverse()
		if _, err := s.upsertOneEdge(ctx, &inverse); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// upsertOneEdge writes a single edge with WATCH-based CAS on its key.
func (s *RedisStore) upsertOneEdge(ctx context.Context, e *entity.Edge) (*entity.Edge, error) {
	key := s.edgeKey(e.Key())
	var result *entity.Edge

	txn := func(tx *redis.Tx) error {
		existing, err := getJSON[entity.Edge](ctx, tx, key)
		if err != nil {
			return err
		}

		var merged entity.Edge
		created := existing == nil
		switch {
		case created:
			merged = *e
		case !existing.Status.CanTransitionTo(e.Status):
			s.logger.Warn("edge status downgrade rejected",
				"edge", e.Key(), "stored", existing.Status, "incoming", e.Status)
			result = existing
			return nil
		default:
			merged = *existing
			if merged.Status == entity.Unverified && e.Status == entity.Verified {
				merged.Status = entity.Verified
				merged.SequenceTag = ""
				merged.Reason = e.Reason
				merged.AdditionalReasons = append([]entity.ConnectionReason(nil), e.AdditionalReasons...)
			}
			if e.AlreadySearched {
				merged.AlreadySearched = true
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := setJSON(ctx, pipe, key, &merged); err != nil {
				return err
			}
			if created {
				pipe.RPush(ctx, s.outKey(e.FromID), e.Key())
			}
			return nil
		})
		result = &merged
		return err
	}

	if err := s.watchRetry(ctx, txn, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return result, nil
}

// GetEntity fetches an entity by ID.
func (s *RedisStore) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	e, err := getJSON[entity.Entity](ctx, s.client, s.entityKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return e, nil
}

// GetRecord fetches a source record by ID.
func (s *RedisStore) GetRecord(ctx context.Context, id string) (*entity.SourceRecord, error) {
	r, err := getJSON[entity.SourceRecord](ctx, s.client, s.recordKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	return r, nil
}

// EdgesFrom returns all edges originating at a node.
func (s *RedisStore) EdgesFrom(ctx context.Context, id string) ([]*entity.Edge, error) {
	keys, err := s.client.LRange(ctx, s.outKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	edges := make([]*entity.Edge, 0, len(keys))
	for _, k := range keys {
		e, err := getJSON[entity.Edge](ctx, s.client, s.edgeKey(k))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
		if e != nil {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

// EntityStatus derives an entity's status from its found_in edges.
func (s *RedisStore) EntityStatus(ctx context.Context, id string) (entity.VerificationStatus, error) {
	if _, err := s.GetEntity(ctx, id); err != nil {
		return "", err
	}
	edges, err := s.EdgesFrom(ctx, id)
	if err != nil {
		return "", err
	}
	for _, e := range edges {
		if e.Kind == entity.FoundIn && e.Status == entity.Verified {
			return entity.Verified, nil
		}
	}
	return entity.Unverified, nil
}

// UnsearchedVerified returns undispatched VERIFIED entities in insertion
// order.
func (s *RedisStore) UnsearchedVerified(ctx context.Context) ([]*entity.Entity, error) {
	ids, err := s.client.LRange(ctx, s.entityListKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	var out []*entity.Entity
	for _, id := range ids {
		searched, err := s.client.SIsMember(ctx, s.searchedKey(), id).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
		if searched {
			continue
		}
		status, err := s.EntityStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status == entity.Verified {
			e, err := s.GetEntity(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// UnsearchedUnverified returns undispatched UNVERIFIED entities with their
// tags, lowest suffix first.
func (s *RedisStore) UnsearchedUnverified(ctx context.Context) ([]TaggedEntity, error) {
	ids, err := s.client.LRange(ctx, s.entityListKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	type candidate struct {
		te     TaggedEntity
		suffix int
		pos    int
	}
	var cands []candidate

	for pos, id := range ids {
		searched, err := s.client.SIsMember(ctx, s.searchedKey(), id).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
		if searched {
			continue
		}
		edges, err := s.EdgesFrom(ctx, id)
		if err != nil {
			return nil, err
		}

		verified := false
		tag, bestN := "", 0
		for _, e := range edges {
			if e.Kind != entity.FoundIn {
				continue
			}
			if e.Status == entity.Verified {
				verified = true
				break
			}
			if e.SequenceTag == "" {
				continue
			}
			if _, n, err := entity.ParseSequenceTag(e.SequenceTag); err == nil {
				if tag == "" || n < bestN {
					tag, bestN = e.SequenceTag, n
				}
			}
		}
		if verified || tag == "" {
			continue
		}

		e, err := s.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		cands = append(cands, candidate{te: TaggedEntity{Entity: e, Tag: tag}, suffix: bestN, pos: pos})
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

// RecordsMentioning returns the records carrying a mentions edge to the
// entity.
func (s *RedisStore) RecordsMentioning(ctx context.Context, entityID string) ([]*entity.SourceRecord, error) {
	edges, err := s.EdgesFrom(ctx, entityID)
	if err != nil {
		return nil, err
	}
	var out []*entity.SourceRecord
	for _, e := range edges {
		if e.Kind != entity.FoundIn {
			continue
		}
		r, err := s.GetRecord(ctx, e.ToID)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// CoOccurring returns every entity sharing a source record with the given
// one.
func (s *RedisStore) CoOccurring(ctx context.Context, entityID string) ([]*entity.Entity, error) {
	records, err := s.RecordsMentioning(ctx, entityID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []*entity.Entity
	for _, r := range records {
		edges, err := s.EdgesFrom(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if e.Kind != entity.Mentions || e.ToID == entityID || seen[e.ToID] {
				continue
			}
			other, err := s.GetEntity(ctx, e.ToID)
			if err != nil {
				continue
			}
			seen[e.ToID] = true
			out = append(out, other)
		}
	}
	return out, nil
}

// TagSuffixes returns the highest persisted sequence-tag suffix per base,
// scanning the edge keyspace.
func (s *RedisStore) TagSuffixes(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	iter := s.client.Scan(ctx, 0, s.key("edge", "*"), 0).Iterator()
	for iter.Next(ctx) {
		e, err := getJSON[entity.Edge](ctx, s.client, iter.Val())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
		if e == nil || e.SequenceTag == "" {
			continue
		}
		base, n, perr := entity.ParseSequenceTag(e.SequenceTag)
		if perr != nil {
			continue
		}
		if n > out[base] {
			out[base] = n
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return out, nil
}

// MarkSearched flags an entity as dispatched.
func (s *RedisStore) MarkSearched(ctx context.Context, entityID string) error {
	if _, err := s.GetEntity(ctx, entityID); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.searchedKey(), entityID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return s.setEdgesSearched(ctx, entityID, true)
}

// setEdgesSearched mirrors the searched flag onto the entity's edge pairs.
func (s *RedisStore) setEdgesSearched(ctx context.Context, entityID string, searched bool) error {
	edges, err := s.EdgesFrom(ctx, entityID)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.Kind != entity.FoundIn {
			continue
		}
		for _, target := range []*entity.Edge{
			e,
			{FromID: e.ToID, ToID: e.FromID, Kind: e.Kind.Inverse()},
		} {
			if err := s.mutateEdge(ctx, target.Key(), func(stored *entity.Edge) {
				stored.AlreadySearched = searched
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Upgrade promotes an entity to VERIFIED.
func (s *RedisStore) Upgrade(ctx context.Context, entityID string) error {
	if _, err := s.GetEntity(ctx, entityID); err != nil {
		return err
	}
	edges, err := s.EdgesFrom(ctx, entityID)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.Kind != entity.FoundIn {
			continue
		}
		for _, target := range []*entity.Edge{
			e,
			{FromID: e.ToID, ToID: e.FromID, Kind: e.Kind.Inverse()},
		} {
			if err := s.mutateEdge(ctx, target.Key(), func(stored *entity.Edge) {
				if stored.Status == entity.Verified {
					return
				}
				stored.Status = entity.Verified
				stored.SequenceTag = ""
				stored.AlreadySearched = false
			}); err != nil {
				return err
			}
		}
	}
	if err := s.client.SRem(ctx, s.searchedKey(), entityID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return nil
}

// mutateEdge applies fn to a stored edge under WATCH. Missing edges are
// skipped.
func (s *RedisStore) mutateEdge(ctx context.Context, edgeKey string, fn func(*entity.Edge)) error {
	key := s.edgeKey(edgeKey)
	txn := func(tx *redis.Tx) error {
		stored, err := getJSON[entity.Edge](ctx, tx, key)
		if err != nil {
			return err
		}
		if stored == nil {
			return nil
		}
		fn(stored)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return setJSON(ctx, pipe, key, stored)
		})
		return err
	}
	if err := s.watchRetry(ctx, txn, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return nil
}

// watchRetry runs a WATCH transaction, retrying on optimistic-lock
// conflicts. Contention on a single identity key is short-lived, so a
// bounded spin is enough.
func (s *RedisStore) watchRetry(ctx context.Context, txn func(*redis.Tx) error, keys ...string) error {
	const maxRetries = 100
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txn, keys...)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("transaction contention on %v exceeded %d retries", keys, maxRetries)
}

// getJSON loads and unmarshals a JSON value; nil means the key is absent.
func getJSON[T any](ctx context.Context, c redis.Cmdable, key string) (*T, error) {
	data, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return &v, nil
}

// setJSON marshals and stores a JSON value.
func setJSON(ctx context.Context, c redis.Cmdable, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, data, 0).Err()
}
