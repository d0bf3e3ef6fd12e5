package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lattice-osint/engine/entity"
)

// StaticProvider serves lookups from an in-memory table. It backs tests
// and local runs where no live OSINT source is available.
//
// Results are keyed by "{type}:{value}" with value matching
// case-insensitively. A value registered through FailWith returns the
// configured error instead, which exercises failure handling in callers.
type StaticProvider struct {
	name  string
	types map[entity.Type]bool

	mu       sync.RWMutex
	results  map[string][]RecordPayload
	failures map[string]error
	calls    map[string]int
}

// NewStaticProvider creates a StaticProvider handling the given entity
// types. With no types listed it supports every type.
func NewStaticProvider(name string, types ...entity.Type) *StaticProvider {
	tm := make(map[entity.Type]bool, len(types))
	for _, t := range types {
		tm[t] = true
	}
	return &StaticProvider{
		name:     name,
		types:    tm,
		results:  make(map[string][]RecordPayload),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Name implements Provider.
func (s *StaticProvider) Name() string { return s.name }

// Supports implements Provider.
func (s *StaticProvider) Supports(t entity.Type) bool {
	if len(s.types) == 0 {
		return true
	}
	return s.types[t]
}

// Add registers payloads returned for lookups of value with the given
// type.
func (s *StaticProvider) Add(t entity.Type, value string, payloads ...RecordPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(t, value)
	s.results[key] = append(s.results[key], payloads...)
}

// FailWith makes lookups of value with the given type return err.
func (s *StaticProvider) FailWith(t entity.Type, value string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[s.key(t, value)] = err
}

// Calls reports how many lookups were executed for value with the given
// type.
func (s *StaticProvider) Calls(t entity.Type, value string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[s.key(t, value)]
}

// Lookup implements Provider.
func (s *StaticProvider) Lookup(ctx context.Context, value string, t entity.Type) ([]RecordPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Supports(t) {
		return nil, fmt.Errorf("%w: %s does not handle %s", ErrUnsupportedType, s.name, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(t, value)
	s.calls[key]++

	if err, ok := s.failures[key]; ok {
		return nil, fmt.Errorf("%w: %s: %v", ErrLookupFailed, s.name, err)
	}

	payloads := s.results[key]
	out := make([]RecordPayload, len(payloads))
	copy(out, payloads)
	return out, nil
}

func (s *StaticProvider) key(t entity.Type, value string) string {
	return string(t) + ":" + strings.ToLower(strings.TrimSpace(value))
}
