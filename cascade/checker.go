package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/graph"
)

// Result is the outcome of an upgrade check.
type Result struct {
	// ShouldUpgrade is true when corroborating evidence authorizes
	// promotion.
	ShouldUpgrade bool

	// Reason identifies the corroborating entity, e.g. "corroborated by
	// co-occurrence with abc". Empty when no upgrade is authorized.
	Reason string
}

// Checker evaluates UNVERIFIED entities for cascade promotion.
type Checker struct {
	store  graph.Store
	logger *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New creates a Checker backed by the given store.
func New(store graph.Store, opts ...Option) *Checker {
	c := &Checker{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckUpgrade decides whether the entity now co-occurs with VERIFIED
// evidence in some source record.
//
// Errors from the store fail closed: the returned Result never authorizes
// an upgrade on a failed check, and the error is surfaced so the caller
// can log and move on.
func (c *Checker) CheckUpgrade(ctx context.Context, entityID string) (Result, error) {
	siblings, err := c.store.CoOccurring(ctx, entityID)
	if err != nil {
		return Result{}, fmt.Errorf("cascade check for %s failed: %w", entityID, err)
	}

	for _, sibling := range siblings {
		status, err := c.store.EntityStatus(ctx, sibling.ID)
		if err != nil {
			return Result{}, fmt.Errorf("cascade check for %s failed: %w", entityID, err)
		}
		if status == entity.Verified {
			return Result{
				ShouldUpgrade: true,
				Reason:        fmt.Sprintf("corroborated by co-occurrence with %s", sibling.ID),
			}, nil
		}
	}

	return Result{}, nil
}

// Promote performs the upgrade through the store's no-downgrade contract
// and logs the promotion.
func (c *Checker) Promote(ctx context.Context, entityID, reason string) error {
	if err := c.store.Upgrade(ctx, entityID); err != nil {
		return fmt.Errorf("promotion of %s failed: %w", entityID, err)
	}
	c.logger.Info("cascade promotion", "entity", entityID, "reason", reason)
	return nil
}
