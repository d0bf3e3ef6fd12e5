package investigate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-osint/engine/cascade"
	"github.com/lattice-osint/engine/classify"
	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/graph"
	"github.com/lattice-osint/engine/identity"
	"github.com/lattice-osint/engine/normalize"
	"github.com/lattice-osint/engine/policy"
	"github.com/lattice-osint/engine/provider"
)

// Phase names the controller's scheduling state.
type Phase string

const (
	PhaseSeed            Phase = "SEED"
	PhaseDrainVerified   Phase = "DRAIN_VERIFIED"
	PhaseDrainUnverified Phase = "DRAIN_UNVERIFIED"
	PhaseCascade         Phase = "CASCADE"
	PhaseDone            Phase = "DONE"
)

// Seed is one trusted starting value for an investigation.
type Seed struct {
	// Type is the entity type of the seed value.
	Type entity.Type

	// Value is the raw seed value; it is normalized before persistence.
	Value string

	// Scope optionally overrides the normalization scope. Empty derives
	// the scope from the type.
	Scope string
}

// Summary reports what an investigation did.
type Summary struct {
	TotalDispatches      int `json:"total_dispatches"`
	VerifiedDispatches   int `json:"verified_dispatches"`
	UnverifiedDispatches int `json:"unverified_dispatches"`
	SkippedByPolicy      int `json:"skipped_by_policy"`
	FailedDispatches     int `json:"failed_dispatches"`
	Upgrades             int `json:"upgrades"`
	EntitiesDiscovered   int `json:"entities_discovered"`
	RecordsIngested      int `json:"records_ingested"`

	// FinalDepth is the deepest recursion level actually dispatched.
	FinalDepth int `json:"final_depth"`

	Duration time.Duration `json:"duration"`
}

// Controller owns one investigation's scheduling loop.
//
// A Controller is single-use: construct, Run once, read the Summary.
type Controller struct {
	store    graph.Store
	search   provider.Provider
	ingestor *Ingestor
	checker  *cascade.Checker
	policy   *policy.Policy
	logger   *slog.Logger
	otel     *otelInstruments

	maxDepth    int
	concurrency int
	timeout     time.Duration
	requeue     bool

	classifierOverride *classify.Classifier

	mu          sync.Mutex
	phase       Phase
	depths      map[string]int
	searched    []string // unverified dispatch order, for the requeue pass
	searchedSet map[string]bool
	requeued    map[string]bool
	summary     Summary
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMaxDepth sets the recursion ceiling. Depth zero searches only the
// seeds. Defaults to 3; negative values are clamped to zero.
func WithMaxDepth(d int) Option {
	return func(c *Controller) {
		if d < 0 {
			d = 0
		}
		c.maxDepth = d
	}
}

// WithConcurrency bounds parallel lookups within one drain tier.
// Defaults to 4.
func WithConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithTimeout bounds a single provider lookup. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPolicy gates every dispatch with a compiled policy.
func WithPolicy(p *policy.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithClassifier overrides the verification classifier.
func WithClassifier(cl *classify.Classifier) Option {
	return func(c *Controller) { c.classifierOverride = cl }
}

// WithRequeueUnverified grants still-unverified entities one extra search
// pass once both worklists drain, instead of leaving them dormant.
func WithRequeueUnverified(enabled bool) Option {
	return func(c *Controller) { c.requeue = enabled }
}

// New creates a Controller over the given store and provider. The provider
// is typically a Multiplexer.
func New(store graph.Store, search provider.Provider, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		search:      search,
		logger:      slog.Default(),
		maxDepth:    3,
		concurrency: 4,
		timeout:     30 * time.Second,
		phase:       PhaseSeed,
		depths:      make(map[string]int),
		searchedSet: make(map[string]bool),
		requeued:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ingestor = NewIngestor(store, c.classifierOverride, c.logger)
	c.checker = cascade.New(store, cascade.WithLogger(c.logger))
	return c
}

// Phase returns the controller's current scheduling state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	if c.phase != p {
		c.phase = p
		c.logger.Debug("phase transition", "phase", string(p))
	}
	c.mu.Unlock()
}

// Run executes the investigation to completion or cancellation and returns
// the summary either way.
func (c *Controller) Run(ctx context.Context, seeds ...Seed) (Summary, error) {
	start := time.Now()
	defer func() {
		c.mu.Lock()
		c.summary.Duration = time.Since(start)
		c.mu.Unlock()
	}()

	if len(seeds) == 0 {
		return c.snapshot(), fmt.Errorf("investigation requires at least one seed")
	}

	if err := c.plant(ctx, seeds); err != nil {
		return c.snapshot(), err
	}
	if err := c.primeTags(ctx); err != nil {
		return c.snapshot(), err
	}

	// Cancellation takes effect at iteration boundaries only: the drains
	// below run on an uncancelable context, so a dispatch already in
	// flight completes and persists before the loop observes the stop.
	work := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return c.snapshot(), err
		}

		dispatched, err := c.drainVerified(work)
		if err != nil {
			return c.snapshot(), err
		}
		if dispatched {
			continue
		}

		dispatched, err = c.drainUnverified(work)
		if err != nil {
			return c.snapshot(), err
		}
		if dispatched {
			continue
		}

		if c.requeue && c.requeueDormant(work) {
			continue
		}
		break
	}

	c.setPhase(PhaseDone)
	return c.snapshot(), nil
}

// plant persists the seeds as trusted evidence at depth zero. Each seed is
// anchored by a synthetic record so its verified status flows through the
// same edge model as provider evidence.
func (c *Controller) plant(ctx context.Context, seeds []Seed) error {
	c.setPhase(PhaseSeed)

	for _, s := range seeds {
		scope := s.Scope
		if scope == "" {
			scope = string(s.Type)
		}
		value := normalize.Value(scope, s.Value)
		if value == "" {
			return fmt.Errorf("seed value cannot be empty")
		}

		e := entity.NewEntity(identity.ForEntity(scope, value), s.Type, scope, value)
		stored, err := c.store.UpsertEntity(ctx, e)
		if err != nil {
			return fmt.Errorf("planting seed %q: %w", s.Value, err)
		}

		record := &entity.SourceRecord{
			ID:       identity.ForRecord("seed", "investigation", stored.ID),
			Provider: "seed",
			Dataset:  "investigation",
			ResultID: stored.ID,
			Status:   entity.Verified,
			Reason:   entity.ReasonInvestigatorInference,
		}
		if _, err := c.store.UpsertRecord(ctx, record); err != nil {
			return fmt.Errorf("planting seed %q: %w", s.Value, err)
		}
		if _, err := c.store.UpsertEdge(ctx, &entity.Edge{
			FromID: stored.ID,
			ToID:   record.ID,
			Kind:   entity.FoundIn,
			Status: entity.Verified,
			Reason: entity.ReasonInvestigatorInference,
		}); err != nil {
			return fmt.Errorf("planting seed %q: %w", s.Value, err)
		}

		c.mu.Lock()
		c.depths[stored.ID] = 0
		c.mu.Unlock()

		c.logger.Info("seed planted", "entity", stored.ID, "type", stored.Type, "value", stored.Value)
	}
	return nil
}

// drainVerified dispatches every eligible entity in the verified worklist,
// newest discovery first, then runs cascade checks over the unverified
// entities those dispatches produced. Returns whether anything dispatched.
func (c *Controller) drainVerified(ctx context.Context) (bool, error) {
	worklist, err := c.store.UnsearchedVerified(ctx)
	if err != nil {
		return false, fmt.Errorf("reading verified worklist: %w", err)
	}

	// Insertion order becomes LIFO: the freshest lead is the hottest.
	var batch []*entity.Entity
	for i := len(worklist) - 1; i >= 0; i-- {
		if c.depthOf(worklist[i].ID) <= c.maxDepth {
			batch = append(batch, worklist[i])
		}
	}
	if len(batch) == 0 {
		return false, nil
	}

	c.setPhase(PhaseDrainVerified)

	var (
		candMu     sync.Mutex
		candidates []string
	)
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, e := range batch {
		g.Go(func() error {
			cands := c.dispatch(ctx, e, entity.Verified)
			candMu.Lock()
			candidates = append(candidates, cands...)
			candMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return true, err
	}

	c.cascadeSweep(ctx, c.alreadySearched(candidates))
	return true, nil
}

// alreadySearched keeps only candidates that have spent their own search.
// Promotion requires both a dispatch and verified co-occurrence; an
// entity that was never searched keeps its place in the unverified queue.
func (c *Controller) alreadySearched(candidates []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, id := range candidates {
		if c.searchedSet[id] {
			out = append(out, id)
		}
	}
	return out
}

// drainUnverified dispatches the single lowest-numbered eligible entity in
// the unverified worklist, then cascade-checks it along with whatever its
// results produced. Returns whether anything dispatched.
func (c *Controller) drainUnverified(ctx context.Context) (bool, error) {
	worklist, err := c.store.UnsearchedUnverified(ctx)
	if err != nil {
		return false, fmt.Errorf("reading unverified worklist: %w", err)
	}

	for _, te := range worklist {
		if c.depthOf(te.Entity.ID) > c.maxDepth {
			continue
		}

		c.setPhase(PhaseDrainUnverified)
		candidates := c.dispatch(ctx, te.Entity, entity.Unverified)

		c.mu.Lock()
		c.searched = append(c.searched, te.Entity.ID)
		c.searchedSet[te.Entity.ID] = true
		c.mu.Unlock()

		c.cascadeSweep(ctx, append(c.alreadySearched(candidates), te.Entity.ID))
		return true, nil
	}
	return false, nil
}

// dispatch runs one policy-gated, timeout-bounded lookup and persists its
// results. A failed lookup contributes zero entities. The returned IDs are
// the cascade candidates the ingest produced.
func (c *Controller) dispatch(ctx context.Context, e *entity.Entity, status entity.VerificationStatus) []string {
	depth := c.depthOf(e.ID)
	log := c.logger.With("entity", e.ID, "value", e.Value, "type", e.Type,
		"status", status, "depth", depth)

	allowed, err := c.policy.Allows(policy.Dispatch{
		Value:  e.Value,
		Type:   e.Type,
		Status: status,
		Scope:  e.Scope,
		Depth:  depth,
	})
	if err != nil {
		log.Error("policy evaluation failed, dispatch blocked", "error", err)
	}
	if err != nil || !allowed {
		c.mu.Lock()
		c.summary.SkippedByPolicy++
		c.mu.Unlock()
		c.markSearched(ctx, e.ID, log)
		if err == nil {
			log.Info("dispatch blocked by policy")
		}
		return nil
	}

	ctx, span := c.startDispatchSpan(ctx, e, status, depth)
	start := time.Now()

	lctx, cancel := context.WithTimeout(ctx, c.timeout)
	payloads, err := c.search.Lookup(lctx, e.Value, e.Type)
	cancel()

	outcome := "ok"
	var res IngestResult
	if err != nil {
		outcome = "lookup_failed"
		log.Warn("lookup failed, no entities persisted", "error", err)
	} else {
		res, err = c.ingestor.Ingest(ctx, e, status, payloads)
		if err != nil {
			outcome = "ingest_failed"
			log.Error("ingest failed", "error", err)
		}
	}

	c.mu.Lock()
	c.summary.TotalDispatches++
	if status == entity.Verified {
		c.summary.VerifiedDispatches++
	} else {
		c.summary.UnverifiedDispatches++
	}
	if outcome != "ok" {
		c.summary.FailedDispatches++
	}
	if depth > c.summary.FinalDepth {
		c.summary.FinalDepth = depth
	}
	c.summary.EntitiesDiscovered += len(res.Discovered)
	c.summary.RecordsIngested += len(res.Records)
	for _, d := range res.Discovered {
		if _, known := c.depths[d.ID]; !known {
			c.depths[d.ID] = depth + 1
		}
	}
	c.mu.Unlock()

	c.markSearched(ctx, e.ID, log)
	c.endDispatchSpan(ctx, span, status, outcome, time.Since(start), len(res.Discovered))

	log.Info("dispatch complete", "outcome", outcome,
		"records", len(res.Records), "discovered", len(res.Discovered))
	return res.Candidates
}

// cascadeSweep promotes every candidate that now co-occurs with verified
// evidence. Promotions reset the entity into the verified worklist, which
// the main loop drains before touching unverified work again.
func (c *Controller) cascadeSweep(ctx context.Context, candidates []string) {
	seen := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true

		status, err := c.store.EntityStatus(ctx, id)
		if err != nil || status == entity.Verified {
			continue
		}

		res, err := c.checker.CheckUpgrade(ctx, id)
		if err != nil {
			c.logger.Warn("cascade check failed, no promotion", "entity", id, "error", err)
			continue
		}
		if !res.ShouldUpgrade {
			continue
		}

		c.setPhase(PhaseCascade)
		if err := c.checker.Promote(ctx, id, res.Reason); err != nil {
			c.logger.Error("cascade promotion failed", "entity", id, "error", err)
			continue
		}
		c.mu.Lock()
		c.summary.Upgrades++
		c.mu.Unlock()
		c.recordUpgrade(ctx)
	}
}

// requeueDormant grants each searched-but-still-unverified entity one
// extra dispatch. Returns whether it dispatched anything.
func (c *Controller) requeueDormant(ctx context.Context) bool {
	c.mu.Lock()
	var pick string
	for _, id := range c.searched {
		if !c.requeued[id] {
			c.requeued[id] = true
			pick = id
			break
		}
	}
	c.mu.Unlock()
	if pick == "" {
		return false
	}

	status, err := c.store.EntityStatus(ctx, pick)
	if err != nil || status == entity.Verified {
		return true // consumed the slot; let the loop look again
	}
	e, err := c.store.GetEntity(ctx, pick)
	if err != nil {
		return true
	}

	c.setPhase(PhaseDrainUnverified)
	c.logger.Info("requeueing dormant entity", "entity", pick)
	candidates := c.dispatch(ctx, e, entity.Unverified)
	c.cascadeSweep(ctx, append(c.alreadySearched(candidates), pick))
	return true
}

// primeTags restores per-base sequence counters from the store, so a run
// over a previously expanded graph never re-mints a persisted suffix.
func (c *Controller) primeTags(ctx context.Context) error {
	suffixes, err := c.store.TagSuffixes(ctx)
	if err != nil {
		return fmt.Errorf("restoring tag sequences: %w", err)
	}
	for base, n := range suffixes {
		c.ingestor.tags.Restore(base, n)
	}
	return nil
}

func (c *Controller) markSearched(ctx context.Context, id string, log *slog.Logger) {
	if err := c.store.MarkSearched(ctx, id); err != nil {
		log.Error("failed to mark entity searched", "error", err)
	}
}

func (c *Controller) depthOf(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.depths[id]; ok {
		return d
	}
	// Entities persisted outside this run count as frontier discoveries.
	return c.maxDepth + 1
}

func (c *Controller) snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}
