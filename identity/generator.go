package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Node kind prefixes used in generated IDs.
const (
	KindEntity = "entity"
	KindRecord = "record"
)

// ForEntity creates the deterministic ID of an entity from its identity
// key. The scope and value are expected to be already normalized (see the
// normalize package); they are lowercased and trimmed again here so the ID
// stays stable even for callers that skip normalization.
//
// The same (scope, value) pair always produces the same ID.
//
// Example:
//
//	id := identity.ForEntity("email", "john@x.com")
//	// id = "entity:AbC123xyz789…"
func ForEntity(scope, value string) string {
	return generate(KindEntity, "scope="+canonical(scope), "value="+canonical(value))
}

// ForRecord creates the deterministic ID of a source record from the
// provider name, dataset name, and provider-local result ID.
func ForRecord(provider, dataset, resultID string) string {
	return generate(KindRecord,
		"provider="+canonical(provider),
		"dataset="+canonical(dataset),
		"result="+canonical(resultID),
	)
}

// generate hashes a canonical string of pre-ordered key=value pairs.
// Format of the canonical string: {kind}:{pair1|pair2|...}.
func generate(kind string, pairs ...string) string {
	canonicalStr := fmt.Sprintf("%s:%s", kind, strings.Join(pairs, "|"))
	hash := sha256.Sum256([]byte(canonicalStr))
	encoded := base64.RawURLEncoding.EncodeToString(hash[:12])
	return fmt.Sprintf("%s:%s", kind, encoded)
}

// canonical normalizes a component of the canonical string.
func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsEntityID reports whether an ID carries the entity kind prefix.
func IsEntityID(id string) bool {
	return strings.HasPrefix(id, KindEntity+":")
}

// IsRecordID reports whether an ID carries the record kind prefix.
func IsRecordID(id string) bool {
	return strings.HasPrefix(id, KindRecord+":")
}
