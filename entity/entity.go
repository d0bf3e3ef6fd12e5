package entity

import (
	"fmt"
	"time"
)

// Provenance records where an observation of an entity came from.
// Provenance lists are append-only; merging two observations of the same
// entity concatenates their provenance.
type Provenance struct {
	// RecordID is the source record that produced the observation.
	RecordID string `json:"record_id"`

	// Field is the raw field name the value appeared under.
	Field string `json:"field,omitempty"`

	// Validation carries optional provider validation metadata, such as
	// "smtp_valid" for emails or "line_type" for phone numbers.
	Validation map[string]string `json:"validation,omitempty"`

	// ObservedAt is when the observation was persisted.
	ObservedAt time.Time `json:"observed_at"`
}

// Entity is a deduplicated real-world value in the graph.
//
// Identity is a pure function of (scope, canonical value): no two entities
// may represent the same normalized value within the same scope. Entities
// are never deleted; repeated observations only append provenance.
type Entity struct {
	// ID is the deterministic identity hash of (scope, canonical value).
	ID string `json:"id"`

	// Type is the entity's kind from the closed type vocabulary.
	Type Type `json:"type"`

	// Scope groups synonymous fields (all URL-bearing fields share scope
	// "url"; registered and breach domains share scope "domain").
	Scope string `json:"scope"`

	// Value is the normalized display value. Immutable once set.
	Value string `json:"value"`

	// Sources is the append-only provenance list.
	Sources []Provenance `json:"sources"`

	// Inferred is true when the entity was derived mechanically rather
	// than observed directly, such as a domain split out of an email.
	Inferred bool `json:"inferred,omitempty"`

	// CreatedAt is when the entity was first observed.
	CreatedAt time.Time `json:"created_at"`
}

// NewEntity creates an Entity with an initialized provenance list.
func NewEntity(id string, typ Type, scope, value string) *Entity {
	return &Entity{
		ID:        id,
		Type:      typ,
		Scope:     scope,
		Value:     value,
		Sources:   []Provenance{},
		CreatedAt: time.Now(),
	}
}

// AddProvenance appends an observation to the entity's provenance list.
func (e *Entity) AddProvenance(p Provenance) {
	e.Sources = append(e.Sources, p)
}

// Validate checks that the entity has its required fields set.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}
	if e.Value == "" {
		return fmt.Errorf("entity value cannot be empty")
	}
	if e.Scope == "" {
		return fmt.Errorf("entity scope cannot be empty")
	}
	return nil
}

// SourceRecord is one atomic result returned by a single provider call:
// one breach hit, one registry lookup, one platform search result.
//
// Records are created once per distinct provider result and are immutable
// afterwards, except for their own verification tag. The record-level tag
// is computed the same way as edge tags, against the record's own entity
// set, so the record itself is queryable as first-class evidence.
type SourceRecord struct {
	// ID is the deterministic hash of (provider, dataset, provider result id).
	ID string `json:"id"`

	// Provider is the name of the source adapter that produced the record.
	Provider string `json:"provider"`

	// Dataset is the provider-side dataset or breach name.
	Dataset string `json:"dataset"`

	// ResultID is the provider-local result identifier.
	ResultID string `json:"result_id"`

	// Raw is the free-form payload as returned by the provider.
	Raw map[string]string `json:"raw,omitempty"`

	// Status is the record's own verification tag. Subject to the same
	// no-downgrade rule as edge tags.
	Status VerificationStatus `json:"status"`

	// Reason is the record's primary connection reason.
	Reason ConnectionReason `json:"reason,omitempty"`

	// CreatedAt is when the record was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the record has its required fields set.
func (r *SourceRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("source record ID cannot be empty")
	}
	if r.Provider == "" {
		return fmt.Errorf("source record provider cannot be empty")
	}
	return nil
}
