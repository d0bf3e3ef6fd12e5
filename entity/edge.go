package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// RelationKind names the kind of a directed edge in the graph.
type RelationKind string

const (
	// Mentions is a SourceRecord -> Entity edge: the record contains the
	// entity's value. Every mentions edge has a found_in inverse.
	Mentions RelationKind = "mentions"

	// FoundIn is an Entity -> SourceRecord edge, the mandatory inverse of
	// mentions, carrying the same tag state.
	FoundIn RelationKind = "found_in"

	// CoOccursWith is an Entity -> Entity edge for cross-record pattern
	// matches.
	CoOccursWith RelationKind = "co_occurs_with"
)

// IsValid returns true if the relation kind is one of the defined constants.
func (k RelationKind) IsValid() bool {
	switch k {
	case Mentions, FoundIn, CoOccursWith:
		return true
	default:
		return false
	}
}

// String returns the string representation of the relation kind.
func (k RelationKind) String() string { return string(k) }

// Inverse returns the inverse relation kind for mentions/found_in pairs.
// CoOccursWith is its own inverse.
func (k RelationKind) Inverse() RelationKind {
	switch k {
	case Mentions:
		return FoundIn
	case FoundIn:
		return Mentions
	default:
		return k
	}
}

// Edge is a directed relation between two graph nodes (entities or source
// records), tagged with verification state.
//
// Tag exclusivity invariant: an UNVERIFIED edge always carries a non-empty
// SequenceTag; a VERIFIED edge never does.
type Edge struct {
	// FromID is the origin node identity hash.
	FromID string `json:"from_id"`

	// ToID is the target node identity hash.
	ToID string `json:"to_id"`

	// Kind is the relation kind.
	Kind RelationKind `json:"kind"`

	// Status is the verification tag. Write-once-upgradable.
	Status VerificationStatus `json:"status"`

	// Reason is the primary connection reason.
	Reason ConnectionReason `json:"reason"`

	// AdditionalReasons lists every other matching reason, ordered after
	// the primary. The ordering is stable across repeated classification
	// of the same pair.
	AdditionalReasons []ConnectionReason `json:"additional_reasons,omitempty"`

	// SequenceTag is "{queried_input_value}_{n}", present only while the
	// edge is UNVERIFIED. Cleared on upgrade.
	SequenceTag string `json:"sequence_tag,omitempty"`

	// AlreadySearched is set once the tagged entity has been dispatched
	// to the search provider.
	AlreadySearched bool `json:"already_searched"`
}

// Key returns the uniqueness key of the edge within the store.
func (e *Edge) Key() string {
	return e.FromID + "|" + string(e.Kind) + "|" + e.ToID
}

// Validate checks structural edge invariants: required fields, a valid
// reason vocabulary entry, and tag exclusivity.
func (e *Edge) Validate() error {
	if e.FromID == "" || e.ToID == "" {
		return fmt.Errorf("edge endpoints cannot be empty")
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("invalid relation kind: %q", e.Kind)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid verification status: %q", e.Status)
	}
	if err := e.Reason.Validate(); err != nil {
		return err
	}
	for _, r := range e.AdditionalReasons {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if e.Status == Verified && e.SequenceTag != "" {
		return fmt.Errorf("verified edge must not carry a sequence tag (got %q)", e.SequenceTag)
	}
	if e.Status == Unverified && e.SequenceTag == "" {
		return fmt.Errorf("unverified edge must carry a sequence tag")
	}
	return nil
}

// FormatSequenceTag builds a "{base}_{n}" query sequence tag.
func FormatSequenceTag(base string, n int) string {
	return fmt.Sprintf("%s_%d", base, n)
}

// ParseSequenceTag splits a sequence tag into its base value and numeric
// suffix. The base may itself contain underscores; the suffix is the text
// after the final one.
func ParseSequenceTag(tag string) (base string, n int, err error) {
	i := strings.LastIndex(tag, "_")
	if i <= 0 || i == len(tag)-1 {
		return "", 0, fmt.Errorf("malformed sequence tag: %q", tag)
	}
	n, err = strconv.Atoi(tag[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed sequence tag suffix in %q: %w", tag, err)
	}
	return tag[:i], n, nil
}
