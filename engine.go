package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lattice-osint/engine/config"
	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/graph"
	"github.com/lattice-osint/engine/health"
	"github.com/lattice-osint/engine/investigate"
	"github.com/lattice-osint/engine/provider"
	"github.com/lattice-osint/engine/provider/registry"
)

// Engine is the top-level entry point: it wires the graph store, provider
// adapters, and optional adapter registry from one investigation config
// and runs investigations on top of them.
//
// Example:
//
//	cfg, err := config.Load("investigation.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.New(cfg, engine.WithProviders(hibp, whois))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	id, _ := eng.Investigate(ctx, investigate.Seed{
//	    Type:  entity.TypeEmail,
//	    Value: "john@x.com",
//	})
//	summary, _ := eng.Wait(ctx, id)
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    graph.Store
	registry *registry.Client
	search   provider.Provider
	manager  *investigate.Manager
	ctlOpts  []investigate.Option
}

type engineConfig struct {
	logger    *slog.Logger
	store     graph.Store
	providers []provider.Provider
	ctlOpts   []investigate.Option
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithLogger sets the structured logger. Defaults to a JSON logger on
// stdout at info level.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithProviders registers the local provider adapters lookups fan out to.
func WithProviders(providers ...provider.Provider) Option {
	return func(c *engineConfig) { c.providers = append(c.providers, providers...) }
}

// WithStore overrides the config-selected graph store, typically for
// tests.
func WithStore(s graph.Store) Option {
	return func(c *engineConfig) { c.store = s }
}

// WithControllerOptions passes extra options to every controller the
// engine creates.
func WithControllerOptions(opts ...investigate.Option) Option {
	return func(c *engineConfig) { c.ctlOpts = append(c.ctlOpts, opts...) }
}

// New creates an Engine from a loaded investigation config.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ec := &engineConfig{}
	for _, opt := range opts {
		opt(ec)
	}

	if ec.logger == nil {
		ec.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if len(ec.providers) == 0 {
		return nil, fmt.Errorf("engine requires at least one provider adapter")
	}

	store := ec.store
	if store == nil {
		switch cfg.Storage.GetBackend() {
		case "redis":
			rs, err := graph.NewRedisStore(graph.RedisOptions{
				URL:    cfg.Storage.RedisURL,
				Logger: ec.logger,
			})
			if err != nil {
				return nil, fmt.Errorf("connecting graph store: %w", err)
			}
			store = rs
		default:
			store = graph.NewMemoryStore(graph.WithMemoryLogger(ec.logger))
		}
	}

	var reg *registry.Client
	if cfg.Registry != nil {
		var err error
		reg, err = registry.NewClient(*cfg.Registry, ec.logger)
		if err != nil {
			return nil, fmt.Errorf("connecting adapter registry: %w", err)
		}
	}

	return &Engine{
		cfg:      cfg,
		logger:   ec.logger,
		store:    store,
		registry: reg,
		search:   provider.NewMultiplexer(ec.providers, ec.logger),
		manager:  investigate.NewManager(ec.logger),
		ctlOpts:  ec.ctlOpts,
	}, nil
}

// Store exposes the graph repository for queries over investigation
// results.
func (e *Engine) Store() graph.Store { return e.store }

// Investigate starts a background investigation from the given seeds and
// returns its ID.
func (e *Engine) Investigate(ctx context.Context, seeds ...investigate.Seed) (string, error) {
	if len(seeds) == 0 {
		return "", fmt.Errorf("investigation requires at least one seed")
	}

	ctl, err := investigate.NewFromConfig(e.cfg, e.store, e.search,
		append([]investigate.Option{investigate.WithLogger(e.logger)}, e.ctlOpts...)...)
	if err != nil {
		return "", err
	}
	return e.manager.Start(ctx, ctl, seeds...), nil
}

// Wait blocks until the investigation finishes and returns its summary.
func (e *Engine) Wait(ctx context.Context, id string) (investigate.Summary, error) {
	return e.manager.Wait(ctx, id)
}

// Stop cancels a running investigation.
func (e *Engine) Stop(id string) error {
	return e.manager.Stop(id)
}

// DiscoverAdapters lists registered remote adapters supporting the given
// entity type. Without a configured registry it returns an empty list.
func (e *Engine) DiscoverAdapters(ctx context.Context, t entity.Type) ([]registry.AdapterInfo, error) {
	if e.registry == nil {
		return nil, nil
	}
	return e.registry.DiscoverByType(ctx, t)
}

// Healthy checks the engine's backing services.
func (e *Engine) Healthy(ctx context.Context) health.Check {
	checks := []health.Check{e.storeCheck(ctx)}
	if e.cfg.Registry != nil {
		checks = append(checks, health.RegistryCheck(ctx, e.cfg.Registry.Endpoints))
	}
	return health.Combine(checks...)
}

// storeCheck probes the graph store with a read that is expected to miss.
func (e *Engine) storeCheck(ctx context.Context) health.Check {
	_, err := e.store.GetEntity(ctx, "health-check")
	switch {
	case err == nil, errors.Is(err, graph.ErrNotFound):
		return health.Check{Status: health.StatusHealthy, Message: "graph store reachable"}
	default:
		return health.Check{
			Status:  health.StatusUnhealthy,
			Message: "graph store probe failed",
			Details: map[string]any{"error": err.Error()},
		}
	}
}

// Close releases the registry connection and the store, when it owns one
// that is closeable.
func (e *Engine) Close() error {
	var errs []error
	if e.registry != nil {
		if err := e.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := e.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
