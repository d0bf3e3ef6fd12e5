package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/identity"
)

// storeFactories builds each Store implementation against a fresh backend.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(RedisOptions{
				URL: fmt.Sprintf("redis://%s", mr.Addr()),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func testEntity(typ entity.Type, scope, value string, prov ...entity.Provenance) *entity.Entity {
	e := entity.NewEntity(identity.ForEntity(scope, value), typ, scope, value)
	e.Sources = append(e.Sources, prov...)
	return e
}

func testRecord(provider, dataset, resultID string) *entity.SourceRecord {
	return &entity.SourceRecord{
		ID:       identity.ForRecord(provider, dataset, resultID),
		Provider: provider,
		Dataset:  dataset,
		ResultID: resultID,
		Status:   entity.Unverified,
		Reason:   entity.ReasonInvestigatorInference,
	}
}

// link persists a mentions/found_in pair between record and entity.
func link(t *testing.T, s Store, rec *entity.SourceRecord, e *entity.Entity, status entity.VerificationStatus, tag string) {
	t.Helper()
	_, err := s.UpsertEdge(context.Background(), &entity.Edge{
		FromID:      e.ID,
		ToID:        rec.ID,
		Kind:        entity.FoundIn,
		Status:      status,
		Reason:      entity.ReasonSameBreachRecord,
		SequenceTag: tag,
	})
	require.NoError(t, err)
}

func TestStoreConformance(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("entity upsert is idempotent", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				e := testEntity(entity.TypeEmail, "email", "john@x.com",
					entity.Provenance{RecordID: "record:r1", ObservedAt: time.Now()})
				first, err := s.UpsertEntity(ctx, e)
				require.NoError(t, err)
				assert.Len(t, first.Sources, 1)

				again := testEntity(entity.TypeEmail, "email", "john@x.com",
					entity.Provenance{RecordID: "record:r2", ObservedAt: time.Now()})
				second, err := s.UpsertEntity(ctx, again)
				require.NoError(t, err)
				assert.Equal(t, first.ID, second.ID)
				assert.Len(t, second.Sources, 2, "provenance should merge, not duplicate the node")

				got, err := s.GetEntity(ctx, e.ID)
				require.NoError(t, err)
				assert.Len(t, got.Sources, 2)
			})

			t.Run("type conflict keeps original", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				e := testEntity(entity.TypeEmail, "email", "john@x.com")
				_, err := s.UpsertEntity(ctx, e)
				require.NoError(t, err)

				conflicting := testEntity(entity.TypeUsername, "email", "john@x.com")
				got, err := s.UpsertEntity(ctx, conflicting)
				require.ErrorIs(t, err, ErrTypeConflict)
				assert.Equal(t, entity.TypeEmail, got.Type)
			})

			t.Run("record tag never downgrades", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				r := testRecord("hibp", "Collection1", "r-1")
				r.Status = entity.Verified
				r.Reason = entity.ReasonSameBreachRecord
				_, err := s.UpsertRecord(ctx, r)
				require.NoError(t, err)

				downgrade := testRecord("hibp", "Collection1", "r-1")
				downgrade.Status = entity.Unverified
				got, err := s.UpsertRecord(ctx, downgrade)
				require.NoError(t, err)
				assert.Equal(t, entity.Verified, got.Status)
			})

			t.Run("mentions and found_in travel as a pair", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				e := testEntity(entity.TypeEmail, "email", "john@x.com")
				r := testRecord("hibp", "Collection1", "r-1")
				_, err := s.UpsertEntity(ctx, e)
				require.NoError(t, err)
				_, err = s.UpsertRecord(ctx, r)
				require.NoError(t, err)

				link(t, s, r, e, entity.Verified, "")

				fromEntity, err := s.EdgesFrom(ctx, e.ID)
				require.NoError(t, err)
				require.Len(t, fromEntity, 1)
				assert.Equal(t, entity.FoundIn, fromEntity[0].Kind)

				fromRecord, err := s.EdgesFrom(ctx, r.ID)
				require.NoError(t, err)
				require.Len(t, fromRecord, 1)
				assert.Equal(t, entity.Mentions, fromRecord[0].Kind)
				assert.Equal(t, fromEntity[0].Status, fromRecord[0].Status)
				assert.Equal(t, fromEntity[0].SequenceTag, fromRecord[0].SequenceTag)
			})

			t.Run("edge status never downgrades", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				e := testEntity(entity.TypeEmail, "email", "john@x.com")
				r := testRecord("hibp", "Collection1", "r-1")
				_, err := s.UpsertEntity(ctx, e)
				require.NoError(t, err)
				_, err = s.UpsertRecord(ctx, r)
				require.NoError(t, err)

				link(t, s, r, e, entity.Verified, "")

				// Adversarial replay: try to re-classify the pair down.
				got, err := s.UpsertEdge(ctx, &entity.Edge{
					FromID:      e.ID,
					ToID:        r.ID,
					Kind:        entity.FoundIn,
					Status:      entity.Unverified,
					Reason:      entity.ReasonSimilarUsername,
					SequenceTag: "john@x.com_1",
				})
				require.NoError(t, err)
				assert.Equal(t, entity.Verified, got.Status)
				assert.Empty(t, got.SequenceTag)

				status, err := s.EntityStatus(ctx, e.ID)
				require.NoError(t, err)
				assert.Equal(t, entity.Verified, status)
			})

			t.Run("upgrade clears tag on both directions", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				e := testEntity(entity.TypeUsername, "username", "john_x")
				r := testRecord("social", "search", "r-9")
				_, err := s.UpsertEntity(ctx, e)
				require.NoError(t, err)
				_, err = s.UpsertRecord(ctx, r)
				require.NoError(t, err)
				link(t, s, r, e, entity.Unverified, "john@x.com_1")
				require.NoError(t, s.MarkSearched(ctx, e.ID))

				require.NoError(t, s.Upgrade(ctx, e.ID))

				for _, id := range []string{e.ID, r.ID} {
					edges, err := s.EdgesFrom(ctx, id)
					require.NoError(t, err)
					require.Len(t, edges, 1)
					assert.Equal(t, entity.Verified, edges[0].Status)
					assert.Empty(t, edges[0].SequenceTag, "tag exclusivity after upgrade")
					assert.False(t, edges[0].AlreadySearched, "searched flag resets on upgrade")
				}

				// Back in the VERIFIED worklist.
				verified, err := s.UnsearchedVerified(ctx)
				require.NoError(t, err)
				require.Len(t, verified, 1)
				assert.Equal(t, e.ID, verified[0].ID)
			})

			t.Run("worklist queries", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				r := testRecord("hibp", "Collection1", "r-1")
				_, err := s.UpsertRecord(ctx, r)
				require.NoError(t, err)

				email := testEntity(entity.TypeEmail, "email", "john@x.com")
				phone := testEntity(entity.TypePhone, "phone", "+15550100")
				user1 := testEntity(entity.TypeUsername, "username", "john_x")
				user2 := testEntity(entity.TypeUsername, "username", "jdoe")
				for _, e := range []*entity.Entity{email, phone, user1, user2} {
					_, err := s.UpsertEntity(ctx, e)
					require.NoError(t, err)
				}

				link(t, s, r, email, entity.Verified, "")
				link(t, s, r, phone, entity.Verified, "")
				link(t, s, r, user1, entity.Unverified, "john@x.com_2")
				link(t, s, r, user2, entity.Unverified, "john@x.com_1")

				verified, err := s.UnsearchedVerified(ctx)
				require.NoError(t, err)
				require.Len(t, verified, 2)
				assert.Equal(t, email.ID, verified[0].ID, "insertion order")
				assert.Equal(t, phone.ID, verified[1].ID)

				require.NoError(t, s.MarkSearched(ctx, email.ID))
				verified, err = s.UnsearchedVerified(ctx)
				require.NoError(t, err)
				require.Len(t, verified, 1)
				assert.Equal(t, phone.ID, verified[0].ID)

				unverified, err := s.UnsearchedUnverified(ctx)
				require.NoError(t, err)
				require.Len(t, unverified, 2)
				assert.Equal(t, user2.ID, unverified[0].Entity.ID, "lowest suffix first")
				assert.Equal(t, "john@x.com_1", unverified[0].Tag)
				assert.Equal(t, user1.ID, unverified[1].Entity.ID)
			})

			t.Run("records mentioning and co-occurrence", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				r1 := testRecord("hibp", "Collection1", "r-1")
				r2 := testRecord("dehashed", "LeakX", "r-2")
				_, err := s.UpsertRecord(ctx, r1)
				require.NoError(t, err)
				_, err = s.UpsertRecord(ctx, r2)
				require.NoError(t, err)

				email := testEntity(entity.TypeEmail, "email", "john@x.com")
				phone := testEntity(entity.TypePhone, "phone", "+15550100")
				user := testEntity(entity.TypeUsername, "username", "john_x")
				for _, e := range []*entity.Entity{email, phone, user} {
					_, err := s.UpsertEntity(ctx, e)
					require.NoError(t, err)
				}

				link(t, s, r1, email, entity.Verified, "")
				link(t, s, r1, phone, entity.Verified, "")
				link(t, s, r2, email, entity.Verified, "")
				link(t, s, r2, user, entity.Unverified, "john@x.com_1")

				records, err := s.RecordsMentioning(ctx, email.ID)
				require.NoError(t, err)
				assert.Len(t, records, 2)

				others, err := s.CoOccurring(ctx, email.ID)
				require.NoError(t, err)
				require.Len(t, others, 2)
				ids := []string{others[0].ID, others[1].ID}
				assert.Contains(t, ids, phone.ID)
				assert.Contains(t, ids, user.ID)

				// Co-occurrence never returns the queried entity itself.
				assert.NotContains(t, ids, email.ID)
			})

			t.Run("tag suffixes report the persisted high-water marks", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				empty, err := s.TagSuffixes(ctx)
				require.NoError(t, err)
				assert.Empty(t, empty)

				r := testRecord("hibp", "Collection1", "r-1")
				_, err = s.UpsertRecord(ctx, r)
				require.NoError(t, err)

				email := testEntity(entity.TypeEmail, "email", "john@x.com")
				user1 := testEntity(entity.TypeUsername, "username", "john_x")
				user2 := testEntity(entity.TypeUsername, "username", "jdoe")
				for _, e := range []*entity.Entity{email, user1, user2} {
					_, err := s.UpsertEntity(ctx, e)
					require.NoError(t, err)
				}

				link(t, s, r, email, entity.Verified, "")
				link(t, s, r, user1, entity.Unverified, "john@x.com_3")
				link(t, s, r, user2, entity.Unverified, "+15550100_1")

				suffixes, err := s.TagSuffixes(ctx)
				require.NoError(t, err)
				assert.Equal(t, map[string]int{
					"john@x.com": 3,
					"+15550100":  1,
				}, suffixes)
			})

			t.Run("missing nodes return ErrNotFound", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				_, err := s.GetEntity(ctx, "entity:missing")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = s.GetRecord(ctx, "record:missing")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = s.EntityStatus(ctx, "entity:missing")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, s.MarkSearched(ctx, "entity:missing"), ErrNotFound)
				assert.ErrorIs(t, s.Upgrade(ctx, "entity:missing"), ErrNotFound)
			})
		})
	}
}

// Two concurrent writers discovering the same entity and edge must not
// race past the downgrade guard or duplicate the node.
func TestStoreConcurrentWriters(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			r := testRecord("hibp", "Collection1", "r-1")
			_, err := s.UpsertRecord(ctx, r)
			require.NoError(t, err)

			base := testEntity(entity.TypeEmail, "email", "john@x.com")
			_, err = s.UpsertEntity(ctx, base)
			require.NoError(t, err)

			const writers = 16
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()

					e := testEntity(entity.TypeEmail, "email", "john@x.com",
						entity.Provenance{RecordID: fmt.Sprintf("record:r%d", i)})
					_, _ = s.UpsertEntity(ctx, e)

					status := entity.Verified
					tag := ""
					if i%2 == 0 {
						status = entity.Unverified
						tag = fmt.Sprintf("john@x.com_%d", i+1)
					}
					_, _ = s.UpsertEdge(ctx, &entity.Edge{
						FromID:      base.ID,
						ToID:        r.ID,
						Kind:        entity.FoundIn,
						Status:      status,
						Reason:      entity.ReasonSameBreachRecord,
						SequenceTag: tag,
					})
				}(i)
			}
			wg.Wait()

			got, err := s.GetEntity(ctx, base.ID)
			require.NoError(t, err)
			assert.Len(t, got.Sources, writers, "every provenance entry merged into one node")

			// At least one writer wrote VERIFIED, so the edge must end
			// VERIFIED with no tag regardless of interleaving.
			edges, err := s.EdgesFrom(ctx, base.ID)
			require.NoError(t, err)
			require.Len(t, edges, 1)
			assert.Equal(t, entity.Verified, edges[0].Status)
			assert.Empty(t, edges[0].SequenceTag)
		})
	}
}
