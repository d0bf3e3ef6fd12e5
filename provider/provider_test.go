package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-osint/engine/entity"
)

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("returns registered payloads", func(t *testing.T) {
		p := NewStaticProvider("hibp", entity.TypeEmail)
		p.Add(entity.TypeEmail, "john@x.com", RecordPayload{
			Provider: "hibp",
			Dataset:  "Collection1",
			ResultID: "r-1",
			Fields:   map[string]string{"emails": "john@x.com", "passwords": "hunter2"},
		})

		got, err := p.Lookup(ctx, "John@X.com", entity.TypeEmail)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Collection1", got[0].Dataset)
		assert.Equal(t, 1, p.Calls(entity.TypeEmail, "john@x.com"))
	})

	t.Run("unknown value yields empty result not error", func(t *testing.T) {
		p := NewStaticProvider("hibp", entity.TypeEmail)
		got, err := p.Lookup(ctx, "nobody@x.com", entity.TypeEmail)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unsupported type is rejected", func(t *testing.T) {
		p := NewStaticProvider("hibp", entity.TypeEmail)
		_, err := p.Lookup(ctx, "+15550100", entity.TypePhone)
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("configured failure surfaces as lookup error", func(t *testing.T) {
		p := NewStaticProvider("hibp", entity.TypeEmail)
		p.FailWith(entity.TypeEmail, "john@x.com", errors.New("rate limited"))
		_, err := p.Lookup(ctx, "john@x.com", entity.TypeEmail)
		assert.ErrorIs(t, err, ErrLookupFailed)
	})

	t.Run("cancelled context stops the lookup", func(t *testing.T) {
		p := NewStaticProvider("hibp", entity.TypeEmail)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Lookup(cancelled, "john@x.com", entity.TypeEmail)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRecordPayloadValidate(t *testing.T) {
	valid := RecordPayload{Provider: "hibp", Dataset: "Collection1", ResultID: "r-1"}
	assert.NoError(t, valid.Validate())

	missingProvider := RecordPayload{ResultID: "r-1"}
	assert.Error(t, missingProvider.Validate())

	missingResult := RecordPayload{Provider: "hibp"}
	assert.Error(t, missingResult.Validate())
}

func TestMultiplexer(t *testing.T) {
	ctx := context.Background()

	payload := func(provider, id string) RecordPayload {
		return RecordPayload{Provider: provider, Dataset: "d", ResultID: id}
	}

	t.Run("concatenates results across providers", func(t *testing.T) {
		a := NewStaticProvider("hibp", entity.TypeEmail)
		a.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1"))
		b := NewStaticProvider("dehashed", entity.TypeEmail)
		b.Add(entity.TypeEmail, "john@x.com", payload("dehashed", "r-2"))

		m := NewMultiplexer([]Provider{a, b}, nil)
		got, err := m.Lookup(ctx, "john@x.com", entity.TypeEmail)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "hibp", got[0].Provider)
		assert.Equal(t, "dehashed", got[1].Provider)
	})

	t.Run("tolerates partial provider failure", func(t *testing.T) {
		a := NewStaticProvider("hibp", entity.TypeEmail)
		a.FailWith(entity.TypeEmail, "john@x.com", errors.New("boom"))
		b := NewStaticProvider("dehashed", entity.TypeEmail)
		b.Add(entity.TypeEmail, "john@x.com", payload("dehashed", "r-2"))

		m := NewMultiplexer([]Provider{a, b}, nil)
		got, err := m.Lookup(ctx, "john@x.com", entity.TypeEmail)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "dehashed", got[0].Provider)
	})

	t.Run("fails when every capable provider fails", func(t *testing.T) {
		a := NewStaticProvider("hibp", entity.TypeEmail)
		a.FailWith(entity.TypeEmail, "john@x.com", errors.New("boom"))

		m := NewMultiplexer([]Provider{a}, nil)
		_, err := m.Lookup(ctx, "john@x.com", entity.TypeEmail)
		assert.ErrorIs(t, err, ErrLookupFailed)
	})

	t.Run("fails when no provider supports the type", func(t *testing.T) {
		a := NewStaticProvider("hibp", entity.TypeEmail)
		m := NewMultiplexer([]Provider{a}, nil)
		_, err := m.Lookup(ctx, "+15550100", entity.TypePhone)
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("skips providers that do not support the type", func(t *testing.T) {
		a := NewStaticProvider("whois", entity.TypeDomain)
		b := NewStaticProvider("hibp", entity.TypeEmail)
		b.Add(entity.TypeEmail, "john@x.com", payload("hibp", "r-1"))

		m := NewMultiplexer([]Provider{a, b}, nil)
		got, err := m.Lookup(ctx, "john@x.com", entity.TypeEmail)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 0, a.Calls(entity.TypeEmail, "john@x.com"))
	})
}
