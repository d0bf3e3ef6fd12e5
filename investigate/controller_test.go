package investigate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/graph"
	"github.com/lattice-osint/engine/policy"
	"github.com/lattice-osint/engine/provider"
)

// recordingProvider wraps a StaticProvider and remembers lookup order.
type recordingProvider struct {
	*provider.StaticProvider

	mu    sync.Mutex
	order []string
}

func (r *recordingProvider) Lookup(ctx context.Context, value string, t entity.Type) ([]provider.RecordPayload, error) {
	r.mu.Lock()
	r.order = append(r.order, value)
	r.mu.Unlock()
	return r.StaticProvider.Lookup(ctx, value, t)
}

func (r *recordingProvider) lookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// noCascadeStore hides co-occurrence so nothing ever promotes.
type noCascadeStore struct {
	graph.Store
}

func (s *noCascadeStore) CoOccurring(ctx context.Context, entityID string) ([]*entity.Entity, error) {
	return nil, nil
}

func payload(prov, id string, fields map[string]string) provider.RecordPayload {
	return provider.RecordPayload{Provider: prov, Dataset: "test", ResultID: id, Fields: fields}
}

func TestControllerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("seed expansion verifies strong matches and drains weak ones", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"emails":    "john@x.com",
			"phones":    "+1 555 0100",
			"passwords": "hunter2",
		}))

		store := graph.NewMemoryStore()
		c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(1))

		summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "John@X.com"})
		require.NoError(t, err)

		// Strong phone verified straight from classification.
		status, err := store.EntityStatus(ctx, graph.EntityIDFor("phone", "+15550100"))
		require.NoError(t, err)
		assert.Equal(t, entity.Verified, status)

		// seed, then phone and password verified through the shared record,
		// then the inferred domain searched unverified, promoted on
		// corroboration, and re-searched verified.
		assert.Equal(t, 5, summary.TotalDispatches)
		assert.Equal(t, 4, summary.VerifiedDispatches)
		assert.Equal(t, 1, summary.UnverifiedDispatches)
		assert.Equal(t, 1, summary.Upgrades)
		assert.Equal(t, 3, summary.EntitiesDiscovered)
		assert.Equal(t, 1, summary.FinalDepth)
		assert.Equal(t, PhaseDone, c.Phase())
	})

	t.Run("verified worklist drains before unverified", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypePhone, "+15550100", payload("hibp", "r-1", map[string]string{
			"ips":       "10.0.0.1",
			"usernames": "jdoe",
		}))
		rp := &recordingProvider{StaticProvider: sp}

		c := New(graph.NewMemoryStore(), rp, WithLogger(testLogger()), WithMaxDepth(1))
		_, err := c.Run(ctx, Seed{Type: entity.TypePhone, Value: "+1 (555) 0100"})
		require.NoError(t, err)

		order := rp.lookups()
		require.GreaterOrEqual(t, len(order), 3)
		assert.Equal(t, []string{"+15550100", "10.0.0.1", "jdoe"}, order[:3])
	})

	t.Run("unverified worklist drains in tag order", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"passwords": "hunter2",
			"usernames": "jdoe",
		}))
		rp := &recordingProvider{StaticProvider: sp}

		store := &noCascadeStore{Store: graph.NewMemoryStore()}
		c := New(store, rp, WithLogger(testLogger()), WithMaxDepth(2))

		summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)

		// Sorted field order fixes the tag sequence: hunter2 takes _1 via
		// the passwords field, jdoe takes _2 via usernames.
		assert.Equal(t, []string{"john@x.com", "hunter2", "jdoe"}, rp.lookups())
		assert.Zero(t, summary.Upgrades)
	})

	t.Run("max depth zero searches only the seed", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"phones": "+1 555 0100",
		}))

		store := graph.NewMemoryStore()
		c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(0))

		summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.TotalDispatches)
		assert.Equal(t, 0, summary.FinalDepth)
		assert.Equal(t, 1, summary.EntitiesDiscovered)

		// The phone was persisted but never dispatched.
		assert.Zero(t, sp.Calls(entity.TypePhone, "+15550100"))
		_, err = store.GetEntity(ctx, graph.EntityIDFor("phone", "+15550100"))
		assert.NoError(t, err)
	})

	t.Run("provider failure contributes zero entities", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.FailWith(entity.TypeEmail, "john@x.com", errors.New("rate limited"))

		c := New(graph.NewMemoryStore(), sp, WithLogger(testLogger()), WithMaxDepth(2))
		summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.TotalDispatches)
		assert.Equal(t, 1, summary.FailedDispatches)
		assert.Zero(t, summary.EntitiesDiscovered)
		assert.Zero(t, summary.RecordsIngested)
	})

	t.Run("cascade promotion re-dispatches with verified priority", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"usernames": "john_x",
		}))
		sp.Add(entity.TypeUsername, "john_x", payload("social", "r-2", map[string]string{
			"phones": "+1 555 0100",
		}))

		store := graph.NewMemoryStore()
		c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(2))

		summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)

		// Searched once unverified, promoted on co-occurrence with the
		// verified seed, then re-searched with verified priority.
		assert.Equal(t, 2, sp.Calls(entity.TypeUsername, "john_x"))
		assert.GreaterOrEqual(t, summary.Upgrades, 1)

		status, err := store.EntityStatus(ctx, graph.EntityIDFor("username", "john_x"))
		require.NoError(t, err)
		assert.Equal(t, entity.Verified, status)
	})

	t.Run("policy blocks dispatches without consuming providers", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"passwords": "hunter2",
		}))

		pol := policy.MustCompile(`type != "password"`)
		store := &noCascadeStore{Store: graph.NewMemoryStore()}
		c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(2), WithPolicy(pol))

		summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.SkippedByPolicy)
		assert.Zero(t, sp.Calls(entity.TypePassword, "hunter2"))
	})

	t.Run("unverified entities search once then go dormant", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"usernames": "jdoe",
		}))

		store := &noCascadeStore{Store: graph.NewMemoryStore()}
		c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(3))

		_, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)
		assert.Equal(t, 1, sp.Calls(entity.TypeUsername, "jdoe"))
	})

	t.Run("requeue grants dormant entities one extra pass", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"usernames": "jdoe",
		}))

		store := &noCascadeStore{Store: graph.NewMemoryStore()}
		c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(3),
			WithRequeueUnverified(true))

		_, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, err)
		assert.Equal(t, 2, sp.Calls(entity.TypeUsername, "jdoe"))
	})

	t.Run("requires at least one seed", func(t *testing.T) {
		c := New(graph.NewMemoryStore(), provider.NewStaticProvider("hibp"), WithLogger(testLogger()))
		_, err := c.Run(ctx)
		assert.Error(t, err)
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		fixture := func() *provider.StaticProvider {
			sp := provider.NewStaticProvider("hibp")
			sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
				"emails":    "john@x.com, jdoe@y.org",
				"phones":    "+1 555 0100",
				"passwords": "hunter2",
			}))
			return sp
		}

		run := func() Summary {
			c := New(graph.NewMemoryStore(), fixture(), WithLogger(testLogger()), WithMaxDepth(1))
			s, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
			require.NoError(t, err)
			return s
		}

		first, second := run(), run()
		first.Duration, second.Duration = 0, 0
		assert.Equal(t, first, second)
	})
}

func TestControllerCancellation(t *testing.T) {
	sp := provider.NewStaticProvider("hibp")
	sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
		"usernames": "jdoe",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(graph.NewMemoryStore(), sp, WithLogger(testLogger()))
	_, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
	assert.Error(t, err)
}

// cancelingProvider cancels the investigation the moment a lookup starts,
// then returns results anyway.
type cancelingProvider struct {
	cancel context.CancelFunc
}

func (p *cancelingProvider) Name() string                { return "canceling" }
func (p *cancelingProvider) Supports(t entity.Type) bool { return true }
func (p *cancelingProvider) Lookup(ctx context.Context, value string, t entity.Type) ([]provider.RecordPayload, error) {
	p.cancel()
	return []provider.RecordPayload{payload("canceling", "r-1", map[string]string{
		"phones": "+1 555 0100",
	})}, nil
}

func TestControllerCancellationPersistsInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := graph.NewMemoryStore()
	c := New(store, &cancelingProvider{cancel: cancel},
		WithLogger(testLogger()), WithMaxDepth(2))

	summary, err := c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
	require.ErrorIs(t, err, context.Canceled)

	// Cancellation lands at the next iteration boundary, so the dispatch
	// already in flight completed and its results were persisted.
	assert.Equal(t, 1, summary.TotalDispatches)
	assert.Equal(t, 1, summary.RecordsIngested)

	status, err := store.EntityStatus(context.Background(), graph.EntityIDFor("phone", "+15550100"))
	require.NoError(t, err)
	assert.Equal(t, entity.Verified, status)
}

func TestControllerResumesTagSequences(t *testing.T) {
	ctx := context.Background()
	store := &noCascadeStore{Store: graph.NewMemoryStore()}

	// An earlier run over this graph already minted john@x.com_1.
	src := newSeed(t, store, entity.TypeEmail, "email", "john@x.com", entity.Verified)
	in := NewIngestor(store, nil, testLogger())
	_, err := in.Ingest(ctx, src, entity.Verified, []provider.RecordPayload{
		payload("hibp", "r-1", map[string]string{"passwords": "hunter2"}),
	})
	require.NoError(t, err)

	sp := provider.NewStaticProvider("hibp")
	sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-2", map[string]string{
		"passwords": "letmein",
	}))

	c := New(store, sp, WithLogger(testLogger()), WithMaxDepth(1))
	_, err = c.Run(ctx, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
	require.NoError(t, err)

	// A fresh controller continues the persisted sequence instead of
	// reusing a suffix.
	edges, err := store.EdgesFrom(ctx, graph.EntityIDFor("password", "letmein"))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "john@x.com_2", edges[0].SequenceTag)
}

// blockingProvider parks every lookup until the context is canceled.
type blockingProvider struct{}

func (blockingProvider) Name() string                  { return "blocking" }
func (blockingProvider) Supports(t entity.Type) bool   { return true }
func (blockingProvider) Lookup(ctx context.Context, value string, t entity.Type) ([]provider.RecordPayload, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("start and wait", func(t *testing.T) {
		sp := provider.NewStaticProvider("hibp")
		sp.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1", map[string]string{
			"phones": "+1 555 0100",
		}))

		m := NewManager(testLogger())
		c := New(graph.NewMemoryStore(), sp, WithLogger(testLogger()), WithMaxDepth(1))

		id := m.Start(ctx, c, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NotEmpty(t, id)

		summary, err := m.Wait(ctx, id)
		require.NoError(t, err)
		assert.Positive(t, summary.TotalDispatches)
		assert.Empty(t, m.Active())
	})

	t.Run("stop cancels a running investigation", func(t *testing.T) {
		m := NewManager(testLogger())
		c := New(graph.NewMemoryStore(), blockingProvider{},
			WithLogger(testLogger()), WithTimeout(50*time.Millisecond))

		id := m.Start(ctx, c, Seed{Type: entity.TypeEmail, Value: "john@x.com"})
		require.NoError(t, m.Stop(id))

		_, err := m.Wait(ctx, id)
		assert.Error(t, err)
	})

	t.Run("unknown investigation", func(t *testing.T) {
		m := NewManager(testLogger())
		assert.Error(t, m.Stop("nope"))
		_, err := m.Wait(ctx, "nope")
		assert.Error(t, err)
	})
}
