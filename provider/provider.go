package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lattice-osint/engine/entity"
)

// Sentinel errors for provider operations.
var (
	// ErrLookupFailed is returned when a provider could not complete a
	// lookup. The controller treats it as "zero new entities".
	ErrLookupFailed = errors.New("provider: lookup failed")

	// ErrUnsupportedType is returned when a provider does not handle the
	// requested entity type.
	ErrUnsupportedType = errors.New("provider: unsupported entity type")
)

// RecordPayload is one atomic result returned by a provider call: the
// provider identity, the dataset it came from, a provider-local result id,
// and a flat map of field name to raw value.
type RecordPayload struct {
	// Provider is the adapter name that produced this payload.
	Provider string `json:"provider"`

	// Dataset is the provider-side dataset or breach name.
	Dataset string `json:"dataset"`

	// ResultID is the provider-local result identifier.
	ResultID string `json:"result_id"`

	// Fields maps raw field names to raw values.
	Fields map[string]string `json:"fields"`

	// Meta carries contextual metadata (city, region, created_at, ...)
	// used by the classifier's contextual tier.
	Meta map[string]string `json:"meta,omitempty"`
}

// Validate checks that the payload carries its identifying triple.
func (p *RecordPayload) Validate() error {
	if p.Provider == "" {
		return fmt.Errorf("payload provider cannot be empty")
	}
	if p.ResultID == "" {
		return fmt.Errorf("payload result ID cannot be empty")
	}
	return nil
}

// Provider executes lookups against one external OSINT source.
type Provider interface {
	// Name returns the adapter's unique name.
	Name() string

	// Supports reports whether the adapter can look up the given entity
	// type.
	Supports(t entity.Type) bool

	// Lookup executes one search for a value of the given type. A failed
	// lookup returns an empty list and an error; it must not block past
	// the context deadline.
	Lookup(ctx context.Context, value string, t entity.Type) ([]RecordPayload, error)
}

// Extractor turns raw free text into typed entity candidates, expressed
// as a record payload so downstream classification is uniform.
type Extractor interface {
	// Extract parses free text into field/value pairs.
	Extract(ctx context.Context, text string) (RecordPayload, error)
}

// Multiplexer fans a lookup across every registered provider that
// supports the entity type. Individual provider failures are logged and
// skipped; the multiplexed lookup only fails when every capable provider
// failed.
type Multiplexer struct {
	providers []Provider
	logger    *slog.Logger
}

// NewMultiplexer creates a Multiplexer over the given providers.
func NewMultiplexer(providers []Provider, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{providers: providers, logger: logger}
}

// Name implements Provider.
func (m *Multiplexer) Name() string { return "multiplex" }

// Supports reports whether any registered provider handles the type.
func (m *Multiplexer) Supports(t entity.Type) bool {
	for _, p := range m.providers {
		if p.Supports(t) {
			return true
		}
	}
	return false
}

// Lookup queries every capable provider and concatenates their payloads.
func (m *Multiplexer) Lookup(ctx context.Context, value string, t entity.Type) ([]RecordPayload, error) {
	var (
		out      []RecordPayload
		capable  int
		failures int
	)

	for _, p := range m.providers {
		if !p.Supports(t) {
			continue
		}
		capable++

		payloads, err := p.Lookup(ctx, value, t)
		if err != nil {
			failures++
			m.logger.Warn("provider lookup failed",
				"provider", p.Name(), "value", value, "type", t, "error", err)
			continue
		}
		out = append(out, payloads...)
	}

	if capable == 0 {
		return nil, fmt.Errorf("%w: no provider supports type %s", ErrUnsupportedType, t)
	}
	if failures == capable {
		return nil, fmt.Errorf("%w: all %d capable providers failed for %q", ErrLookupFailed, capable, value)
	}
	return out, nil
}
