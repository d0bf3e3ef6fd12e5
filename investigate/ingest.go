package investigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lattice-osint/engine/classify"
	"github.com/lattice-osint/engine/entity"
	"github.com/lattice-osint/engine/graph"
	"github.com/lattice-osint/engine/identity"
	"github.com/lattice-osint/engine/normalize"
	"github.com/lattice-osint/engine/provider"
)

// Ingestor persists provider payloads into the graph: records, extracted
// entities, and the classified edges between them.
type Ingestor struct {
	store      graph.Store
	classifier *classify.Classifier
	tags       *classify.TagAllocator
	logger     *slog.Logger
}

// NewIngestor creates an Ingestor. A nil classifier selects the default
// similarity threshold.
func NewIngestor(store graph.Store, classifier *classify.Classifier, logger *slog.Logger) *Ingestor {
	if classifier == nil {
		classifier = classify.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:      store,
		classifier: classifier,
		tags:       classify.NewTagAllocator(),
		logger:     logger,
	}
}

// IngestResult summarizes one persisted dispatch.
type IngestResult struct {
	// Records lists the IDs of records written for this dispatch.
	Records []string

	// Discovered lists entities first seen in this dispatch.
	Discovered []*entity.Entity

	// Candidates lists IDs of entities left UNVERIFIED by this dispatch,
	// in persistence order. They are the cascade check set.
	Candidates []string
}

// observation is one extracted field value within a record.
type observation struct {
	ent   *entity.Entity
	field string
	fresh bool
}

// classified pairs an observation with its verification decision against
// the searched entity.
type classified struct {
	o        observation
	decision classify.Decision
	status   entity.VerificationStatus
}

// recordVerdict derives the record's own verification tag from the evidence
// inside it. A record containing the value of a VERIFIED search is
// same-record evidence; otherwise the record is VERIFIED only when one of
// its own pairs classified VERIFIED, and its reason comes from that pair.
// An UNVERIFIED record never claims same-record proof.
func recordVerdict(srcRecordID string, srcStatus entity.VerificationStatus, pairs []classified) (entity.VerificationStatus, entity.ConnectionReason) {
	if srcRecordID != "" && srcStatus == entity.Verified {
		return entity.Verified, entity.ReasonSameBreachRecord
	}
	for _, c := range pairs {
		if c.status == entity.Verified {
			return entity.Verified, c.decision.Primary
		}
	}
	for _, c := range pairs {
		for _, r := range c.decision.Reasons() {
			if r != entity.ReasonSameBreachRecord {
				return entity.Unverified, r
			}
		}
	}
	return entity.Unverified, entity.ReasonInvestigatorInference
}

// Ingest persists every payload returned by searching src. Each payload
// becomes one source record; its fields are normalized into entities and
// classified against the searched entity. Results found by an UNVERIFIED
// search stay UNVERIFIED regardless of classification.
func (in *Ingestor) Ingest(ctx context.Context, src *entity.Entity, srcStatus entity.VerificationStatus, payloads []provider.RecordPayload) (IngestResult, error) {
	var res IngestResult
	seenCandidates := make(map[string]bool)

	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			in.logger.Warn("skipping malformed payload",
				"provider", p.Provider, "error", err)
			continue
		}
		if err := in.ingestPayload(ctx, src, srcStatus, p, &res, seenCandidates); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (in *Ingestor) ingestPayload(ctx context.Context, src *entity.Entity, srcStatus entity.VerificationStatus, p provider.RecordPayload, res *IngestResult, seenCandidates map[string]bool) error {
	recordID := identity.ForRecord(p.Provider, p.Dataset, p.ResultID)
	obs := in.extract(ctx, p, recordID)

	// When the record's own fields contain the searched value, the searched
	// entity shares the record with everything extracted from it, which is
	// the strongest evidence the classifier knows.
	srcRecordID := ""
	for _, o := range obs {
		if o.ent.ID == src.ID {
			srcRecordID = recordID
			break
		}
	}
	srcInput := classify.Input{Entity: src, RecordID: srcRecordID, Meta: p.Meta}

	// Classify every extracted entity against the searched one before
	// anything is written, so the record's own tag can be computed first.
	var pairs []classified
	for _, o := range obs {
		if o.ent.ID == src.ID {
			continue
		}
		d := in.classifier.Classify(srcInput, classify.Input{
			Entity:   o.ent,
			RecordID: recordID,
			Meta:     p.Meta,
		})
		status := d.Status
		// Evidence reached through an unverified search inherits its doubt,
		// and mechanically derived entities start unverified no matter how
		// strong their type is.
		if srcStatus == entity.Unverified || o.ent.Inferred {
			status = entity.Unverified
		}
		pairs = append(pairs, classified{o: o, decision: d, status: status})
	}

	recordStatus, recordReason := recordVerdict(srcRecordID, srcStatus, pairs)

	record := &entity.SourceRecord{
		ID:       recordID,
		Provider: p.Provider,
		Dataset:  p.Dataset,
		ResultID: p.ResultID,
		Raw:      p.Fields,
		Status:   recordStatus,
		Reason:   recordReason,
	}
	if _, err := in.store.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("persisting record %s: %w", recordID, err)
	}
	res.Records = append(res.Records, recordID)

	// The searched value itself anchors the record at the searcher's own
	// status.
	srcReason := entity.ReasonInvestigatorInference
	if srcRecordID != "" {
		srcReason = entity.ReasonSameBreachRecord
	}
	if err := in.link(ctx, src.ID, recordID, srcStatus, classify.Decision{
		Status:  srcStatus,
		Primary: srcReason,
	}, src.Value); err != nil {
		return err
	}

	for _, c := range pairs {
		stored, err := in.store.UpsertEntity(ctx, c.o.ent)
		if err != nil {
			if errors.Is(err, graph.ErrTypeConflict) {
				in.logger.Warn("identity collision with conflicting type",
					"entity", c.o.ent.ID, "value", c.o.ent.Value,
					"kept", stored.Type, "rejected", c.o.ent.Type)
			} else {
				return fmt.Errorf("persisting entity %s: %w", c.o.ent.ID, err)
			}
		}
		if c.o.fresh {
			res.Discovered = append(res.Discovered, stored)
		}

		if err := in.link(ctx, stored.ID, recordID, c.status, c.decision, src.Value); err != nil {
			return err
		}
		if c.status == entity.Unverified && !seenCandidates[stored.ID] {
			seenCandidates[stored.ID] = true
			res.Candidates = append(res.Candidates, stored.ID)
		}
	}
	return nil
}

// link writes the found_in edge (and, via the store, its mentions inverse)
// from an entity to a record, allocating a sequence tag when the edge is
// UNVERIFIED.
func (in *Ingestor) link(ctx context.Context, entityID, recordID string, status entity.VerificationStatus, d classify.Decision, tagBase string) error {
	var tag string
	if status == entity.Unverified {
		tag = in.tags.Next(tagBase)
	}
	_, err := in.store.UpsertEdge(ctx, &entity.Edge{
		FromID:            entityID,
		ToID:              recordID,
		Kind:              entity.FoundIn,
		Status:            status,
		Reason:            d.Primary,
		AdditionalReasons: d.Additional,
		SequenceTag:       tag,
	})
	if err != nil {
		return fmt.Errorf("persisting edge %s -> %s: %w", entityID, recordID, err)
	}
	return nil
}

// extract normalizes every field value in the payload into entity
// observations, deduplicated by identity within the record. Each email
// additionally yields an inferred domain entity.
func (in *Ingestor) extract(ctx context.Context, p provider.RecordPayload, recordID string) []observation {
	now := time.Now()
	seen := make(map[string]bool)
	var out []observation

	add := func(key normalize.Key, field string, inferred bool) {
		if key.Value == "" || seen[key.Scope+"|"+key.Value] {
			return
		}
		seen[key.Scope+"|"+key.Value] = true

		id := identity.ForEntity(key.Scope, key.Value)
		e := entity.NewEntity(id, normalize.TypeForScope(key.Scope), key.Scope, key.Value)
		e.Inferred = inferred
		e.AddProvenance(entity.Provenance{
			RecordID:   recordID,
			Field:      field,
			ObservedAt: now,
		})

		fresh := false
		if _, err := in.store.GetEntity(ctx, id); errors.Is(err, graph.ErrNotFound) {
			fresh = true
		}
		out = append(out, observation{ent: e, field: field, fresh: fresh})
	}

	// Field order fixes tag allocation order, so it must be stable.
	fields := make([]string, 0, len(p.Fields))
	for field := range p.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for _, part := range splitValues(p.Fields[field]) {
			key := normalize.Field(field, part)
			add(key, field, false)

			if key.Scope == normalize.ScopeEmail {
				if domain := normalize.EmailDomain(key.Value); domain != "" {
					add(normalize.Key{Scope: normalize.ScopeDomain, Value: domain}, field, true)
				}
			}
		}
	}
	return out
}

// splitValues breaks a multi-valued provider field on commas and
// semicolons.
func splitValues(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
