package investigate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lattice-osint/engine/classify"
	"github.com/lattice-osint/engine/config"
	"github.com/lattice-osint/engine/graph"
	"github.com/lattice-osint/engine/policy"
	"github.com/lattice-osint/engine/provider"
)

// NewFromConfig builds a Controller from a loaded investigation config,
// compiling its dispatch policy up front.
func NewFromConfig(cfg *config.Config, store graph.Store, search provider.Provider, opts ...Option) (*Controller, error) {
	pol, err := policy.Compile(cfg.Dispatch.GetPolicy())
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithMaxDepth(cfg.Dispatch.GetMaxDepth()),
		WithConcurrency(cfg.Dispatch.GetConcurrency()),
		WithTimeout(cfg.Dispatch.GetTimeout()),
		WithPolicy(pol),
		WithRequeueUnverified(cfg.Dispatch.GetRequeueUnverified()),
		WithClassifier(classify.New(cfg.Classify.GetSimilarityThreshold())),
	}
	return New(store, search, append(base, opts...)...), nil
}

// run tracks one managed investigation.
type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
	err     error
}

// Manager runs investigations in the background, keyed by generated ID, so
// callers can stop or await them independently.
type Manager struct {
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, runs: make(map[string]*run)}
}

// Start launches the controller in the background and returns the
// investigation ID.
func (m *Manager) Start(ctx context.Context, c *Controller, seeds ...Seed) string {
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.runs[id] = r
	m.mu.Unlock()

	m.logger.Info("investigation started", "investigation", id, "seeds", len(seeds))

	go func() {
		defer close(r.done)
		defer cancel()

		summary, err := c.Run(runCtx, seeds...)

		m.mu.Lock()
		r.summary, r.err = summary, err
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("investigation ended", "investigation", id, "error", err)
		} else {
			m.logger.Info("investigation complete", "investigation", id,
				"dispatches", summary.TotalDispatches, "upgrades", summary.Upgrades,
				"depth", summary.FinalDepth)
		}
	}()

	return id
}

// Stop cancels a running investigation. The stop lands at the next loop
// iteration, so a dispatch already in flight finishes and persists. The
// partial summary remains available through Wait.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown investigation %q", id)
	}
	r.cancel()
	return nil
}

// Wait blocks until the investigation finishes or ctx expires, then
// returns its summary and terminal error.
func (m *Manager) Wait(ctx context.Context, id string) (Summary, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return Summary{}, fmt.Errorf("unknown investigation %q", id)
	}

	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case <-r.done:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return r.summary, r.err
}

// Active returns the IDs of investigations that have not finished.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, r := range m.runs {
		select {
		case <-r.done:
		default:
			ids = append(ids, id)
		}
	}
	return ids
}
