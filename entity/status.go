package entity

import "fmt"

// VerificationStatus classifies the evidentiary weight of a connection.
//
// The status is write-once-upgradable: UNVERIFIED may become VERIFIED
// (cascade promotion), VERIFIED never becomes UNVERIFIED. The graph
// repository enforces the no-downgrade rule on every write.
type VerificationStatus string

const (
	// Verified marks a connection backed by same-record co-occurrence or by
	// a pair of high-specificity identifier types.
	Verified VerificationStatus = "verified"

	// Unverified marks a connection inferred from pattern or heuristic
	// evidence, or involving at least one low-specificity identifier type.
	Unverified VerificationStatus = "unverified"
)

// IsValid returns true if the status is one of the defined constants.
func (s VerificationStatus) IsValid() bool {
	return s == Verified || s == Unverified
}

// String returns the string representation of the status.
func (s VerificationStatus) String() string { return string(s) }

// CanTransitionTo reports whether a status write from s to next is legal.
// The only mutating transition allowed is Unverified -> Verified; writing
// the same value again is always legal (idempotent upsert).
func (s VerificationStatus) CanTransitionTo(next VerificationStatus) bool {
	if s == next {
		return true
	}
	return s == Unverified && next == Verified
}

// ParseVerificationStatus parses a string into a VerificationStatus.
func ParseVerificationStatus(str string) (VerificationStatus, error) {
	s := VerificationStatus(str)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid verification status: %q (must be verified or unverified)", str)
	}
	return s, nil
}
