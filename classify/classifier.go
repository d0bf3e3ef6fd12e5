package classify

import (
	"strings"

	"github.com/lattice-osint/engine/entity"
)

// Input is one side of a classification: the entity plus the source record
// it was observed in and that record's contextual metadata.
type Input struct {
	// Entity is the observed entity.
	Entity *entity.Entity

	// RecordID identifies the source record the observation came from.
	RecordID string

	// Meta is contextual record metadata used by tier C heuristics.
	// Recognized keys: "city", "region", "created_at", "event_date".
	Meta map[string]string
}

// Decision is the outcome of classifying one entity pair.
type Decision struct {
	// Status is the verification decision.
	Status entity.VerificationStatus

	// Primary is the first matching reason.
	Primary entity.ConnectionReason

	// Additional lists every other matching reason, in detection order.
	// The ordering is stable across repeated classification of the pair.
	Additional []entity.ConnectionReason
}

// Reasons returns the full ordered reason list, primary first.
func (d Decision) Reasons() []entity.ConnectionReason {
	return append([]entity.ConnectionReason{d.Primary}, d.Additional...)
}

// Classifier computes verification decisions for entity pairs.
type Classifier struct {
	// threshold is the minimum similarity for tier B/D string heuristics.
	threshold float64
}

// New creates a Classifier. A non-positive threshold selects
// DefaultSimilarityThreshold.
func New(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Classifier{threshold: threshold}
}

// Classify computes the verification decision and reason list for a pair
// of observed entities. It is a pure function of its inputs: classifying
// the same pair again yields the same decision with the same reason
// ordering.
func (c *Classifier) Classify(a, b Input) Decision {
	status := c.status(a, b)
	reasons := c.detectReasons(a, b)

	// The fallback tier guarantees at least one reason.
	return Decision{
		Status:     status,
		Primary:    reasons[0],
		Additional: reasons[1:],
	}
}

// status applies the ordered verification decision rules.
func (c *Classifier) status(a, b Input) entity.VerificationStatus {
	if a.RecordID != "" && a.RecordID == b.RecordID {
		return entity.Verified
	}
	at, bt := a.Entity.Type, b.Entity.Type
	if at.Strength() == entity.Weak || bt.Strength() == entity.Weak {
		return entity.Unverified
	}
	if at.IsStrong() && bt.IsStrong() {
		return entity.Verified
	}
	return entity.Unverified
}

// sameFieldReasons maps an entity type onto its tier A exact-equality
// reason.
var sameFieldReasons = map[entity.Type]entity.ConnectionReason{
	entity.TypeEmail:    entity.ReasonSameEmail,
	entity.TypePhone:    entity.ReasonSamePhone,
	entity.TypeUsername: entity.ReasonSameUsername,
	entity.TypeIP:       entity.ReasonSameIP,
	entity.TypePassword: entity.ReasonSamePassword,
	entity.TypeDomain:   entity.ReasonSameDomain,
	entity.TypeAddress:  entity.ReasonSameAddress,
	entity.TypeName:     entity.ReasonSameName,
	entity.TypePerson:   entity.ReasonSameName,
}

// detectReasons runs the ordered reason tiers and returns every match.
// Tier order: A identity, B pattern, C contextual, D fallback. The list is
// never empty because tier D always contributes.
func (c *Classifier) detectReasons(a, b Input) []entity.ConnectionReason {
	var reasons []entity.ConnectionReason

	// Tier A: identity matches.
	if a.RecordID != "" && a.RecordID == b.RecordID {
		reasons = append(reasons, entity.ReasonSameBreachRecord)
	}
	if a.Entity.Type == b.Entity.Type && a.Entity.Value == b.Entity.Value {
		if r, ok := sameFieldReasons[a.Entity.Type]; ok {
			reasons = append(reasons, r)
		}
	}

	// Tier B: pattern heuristics.
	if usernameContainsEmailPrefix(a.Entity, b.Entity) {
		reasons = append(reasons, entity.ReasonUsernameContainsEmailPrefix)
	}
	if a.Entity.Type == entity.TypeUsername && b.Entity.Type == entity.TypeUsername &&
		a.Entity.Value != b.Entity.Value &&
		Similarity(a.Entity.Value, b.Entity.Value) >= c.threshold {
		reasons = append(reasons, entity.ReasonSimilarUsername)
	}
	if sameSurname(a.Entity, b.Entity) {
		reasons = append(reasons, entity.ReasonSameSurname)
	}

	// Tier C: contextual evidence from record metadata.
	if metaMatch(a.Meta, b.Meta, "city") || metaMatch(a.Meta, b.Meta, "region") {
		reasons = append(reasons, entity.ReasonSameGeolocation)
	}
	if metaMatch(a.Meta, b.Meta, "created_at") || metaMatch(a.Meta, b.Meta, "event_date") {
		reasons = append(reasons, entity.ReasonTemporalCorrelation)
	}

	// Tier D: fallback. similarity_score when the raw values resemble each
	// other, investigator_inference otherwise. One of the two always fires
	// when nothing above matched.
	if len(reasons) == 0 {
		if Similarity(a.Entity.Value, b.Entity.Value) >= c.threshold {
			reasons = append(reasons, entity.ReasonSimilarityScore)
		} else {
			reasons = append(reasons, entity.ReasonInvestigatorInference)
		}
	}

	return reasons
}

// usernameContainsEmailPrefix fires when one side is an email whose local
// part appears inside the other side's username.
func usernameContainsEmailPrefix(a, b *entity.Entity) bool {
	email, username := a, b
	if email.Type != entity.TypeEmail {
		email, username = b, a
	}
	if email.Type != entity.TypeEmail || username.Type != entity.TypeUsername {
		return false
	}
	at := strings.Index(email.Value, "@")
	if at <= 0 {
		return false
	}
	prefix := email.Value[:at]
	// Platform handles commonly replace separators; compare without them.
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case '.', '_', '-':
				return -1
			}
			return r
		}, s)
	}
	return strings.Contains(clean(username.Value), clean(prefix))
}

// sameSurname fires for two name-typed entities sharing their final token.
func sameSurname(a, b *entity.Entity) bool {
	nameType := func(t entity.Type) bool {
		return t == entity.TypeName || t == entity.TypePerson
	}
	if !nameType(a.Type) || !nameType(b.Type) {
		return false
	}
	af := strings.Fields(a.Value)
	bf := strings.Fields(b.Value)
	if len(af) < 2 || len(bf) < 2 {
		return false
	}
	return af[len(af)-1] == bf[len(bf)-1] && a.Value != b.Value
}

// metaMatch reports whether both sides carry the same non-empty value for
// a metadata key.
func metaMatch(a, b map[string]string, key string) bool {
	av, bv := strings.TrimSpace(a[key]), strings.TrimSpace(b[key])
	return av != "" && strings.EqualFold(av, bv)
}
