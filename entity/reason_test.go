package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionReasonVocabulary(t *testing.T) {
	t.Run("every listed reason is valid and categorized", func(t *testing.T) {
		for _, r := range AllConnectionReasons() {
			assert.True(t, r.IsValid(), "reason %s should be valid", r)
			assert.NotEmpty(t, r.Category(), "reason %s should have a category", r)
		}
	})

	t.Run("vocabulary size is stable", func(t *testing.T) {
		// The taxonomy is versioned; growing or shrinking it is a
		// deliberate change that must update this count.
		assert.Len(t, AllConnectionReasons(), 41)
	})

	t.Run("unknown reason is rejected", func(t *testing.T) {
		r := ConnectionReason("vibes")
		assert.False(t, r.IsValid())
		require.Error(t, r.Validate())
	})

	t.Run("no duplicates in listing", func(t *testing.T) {
		seen := make(map[ConnectionReason]bool)
		for _, r := range AllConnectionReasons() {
			assert.False(t, seen[r], "duplicate reason %s", r)
			seen[r] = true
		}
	})
}

func TestReasonCategories(t *testing.T) {
	tests := []struct {
		reason ConnectionReason
		want   ReasonCategory
	}{
		{ReasonSameBreachRecord, CategoryDirectMatch},
		{ReasonSamePasswordHash, CategoryCryptographic},
		{ReasonSameLinkedInProfile, CategoryPlatform},
		{ReasonSimilarUsername, CategoryPattern},
		{ReasonSameGeolocation, CategoryGeographic},
		{ReasonTemporalCorrelation, CategoryTemporal},
		{ReasonSameASN, CategoryNetwork},
		{ReasonInvestigatorInference, CategoryFallback},
		{ReasonSimilarityScore, CategoryFallback},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.Category())
		})
	}
}

func TestValidateReasons(t *testing.T) {
	t.Run("empty list is a defect", func(t *testing.T) {
		require.Error(t, ValidateReasons(nil))
		require.Error(t, ValidateReasons([]ConnectionReason{}))
	})

	t.Run("valid list passes", func(t *testing.T) {
		require.NoError(t, ValidateReasons([]ConnectionReason{
			ReasonSameBreachRecord, ReasonSameEmail,
		}))
	})

	t.Run("invalid member fails", func(t *testing.T) {
		require.Error(t, ValidateReasons([]ConnectionReason{
			ReasonSameBreachRecord, ConnectionReason("hunch"),
		}))
	})
}
