package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeValidate(t *testing.T) {
	valid := func() *Edge {
		return &Edge{
			FromID: "record:abc",
			ToID:   "entity:def",
			Kind:   Mentions,
			Status: Verified,
			Reason: ReasonSameBreachRecord,
		}
	}

	t.Run("valid verified edge", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("valid unverified edge", func(t *testing.T) {
		e := valid()
		e.Status = Unverified
		e.SequenceTag = "john@x.com_1"
		require.NoError(t, e.Validate())
	})

	t.Run("verified edge with tag violates exclusivity", func(t *testing.T) {
		e := valid()
		e.SequenceTag = "john@x.com_1"
		require.Error(t, e.Validate())
	})

	t.Run("unverified edge without tag violates exclusivity", func(t *testing.T) {
		e := valid()
		e.Status = Unverified
		require.Error(t, e.Validate())
	})

	t.Run("missing endpoints", func(t *testing.T) {
		e := valid()
		e.FromID = ""
		require.Error(t, e.Validate())
	})

	t.Run("reason outside vocabulary", func(t *testing.T) {
		e := valid()
		e.Reason = ConnectionReason("gut_feeling")
		require.Error(t, e.Validate())
	})

	t.Run("invalid additional reason", func(t *testing.T) {
		e := valid()
		e.AdditionalReasons = []ConnectionReason{ConnectionReason("nope")}
		require.Error(t, e.Validate())
	})
}

func TestRelationKindInverse(t *testing.T) {
	assert.Equal(t, FoundIn, Mentions.Inverse())
	assert.Equal(t, Mentions, FoundIn.Inverse())
	assert.Equal(t, CoOccursWith, CoOccursWith.Inverse())
}

func TestSequenceTag(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		tag := FormatSequenceTag("john@x.com", 3)
		assert.Equal(t, "john@x.com_3", tag)

		base, n, err := ParseSequenceTag(tag)
		require.NoError(t, err)
		assert.Equal(t, "john@x.com", base)
		assert.Equal(t, 3, n)
	})

	t.Run("base containing underscores", func(t *testing.T) {
		base, n, err := ParseSequenceTag("john_x_2")
		require.NoError(t, err)
		assert.Equal(t, "john_x", base)
		assert.Equal(t, 2, n)
	})

	t.Run("malformed tags", func(t *testing.T) {
		for _, tag := range []string{"", "john", "john_", "_1", "john_one"} {
			_, _, err := ParseSequenceTag(tag)
			assert.Error(t, err, "tag %q should be rejected", tag)
		}
	})
}

func TestVerificationStatusTransitions(t *testing.T) {
	assert.True(t, Unverified.CanTransitionTo(Verified))
	assert.True(t, Verified.CanTransitionTo(Verified))
	assert.True(t, Unverified.CanTransitionTo(Unverified))
	assert.False(t, Verified.CanTransitionTo(Unverified))
}
