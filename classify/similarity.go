package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultSimilarityThreshold is the minimum normalized similarity for the
// similar_username and similarity_score heuristics.
const DefaultSimilarityThreshold = 0.7

// Similarity returns a normalized edit-distance similarity in [0, 1]:
// 1 for identical strings, 0 for entirely dissimilar ones. Comparison is
// case-insensitive.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1
	}
	// ComputeDistance counts runes, so the normalization base must too.
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
