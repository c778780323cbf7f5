package ingest

import (
	"context"
	"slices"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/extract"
	"github.com/OFFIS-RIT/hazgraph/pkg/graph"
	"github.com/OFFIS-RIT/hazgraph/pkg/identity"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
)

// validate checks every candidate against cat, resolves identities of the
// entities that passed and returns what may be written to the graph.
// Relationships are validated after all entities so a rejected or
// unresolved endpoint rejects them too. An endpoint given as an identity
// key must name a node of this record or one already in the graph.
func (p *Pipeline) validate(
	ctx context.Context,
	rec common.CanonicalRecord,
	res extract.Result,
	cat schema.Catalog,
	out *common.IngestionOutcome,
) graph.Batch {
	batch := graph.Batch{RecordID: rec.ID, RetrievedAt: rec.RetrievedAt}
	endpoints := make(map[string]schema.Endpoint, len(res.Entities))
	keys := make(map[string]common.IdentityKey, len(res.Entities))
	byKey := make(map[common.IdentityKey]schema.Endpoint, len(res.Entities))

	for _, e := range res.Entities {
		v := schema.ValidateEntity(e, cat)
		p.record(out, "entity", v)

		ep := schema.Endpoint{ID: e.LocalID, Type: e.Type, Status: v.Status}
		if v.Passed() {
			key, err := identity.Resolve(e, cat)
			if err != nil {
				ep.Unresolved = true
				out.Unresolved++
				p.park(ctx, rec.ID, e, err)
			} else {
				keys[e.LocalID] = key
				byKey[key] = ep
				batch.Nodes = append(batch.Nodes, graph.NodeWrite{
					Key:        key,
					Type:       e.Type,
					Attributes: e.Attributes,
					Confidence: e.Confidence,
					Provenance: provenance(rec.ID, e.Provenance),
				})
			}
		}
		endpoints[e.LocalID] = ep
	}

	refs := p.nodeRefs(ctx, rec.ID, res.Relationships, byKey, cat)
	endpoint := func(localID string, key common.IdentityKey) (schema.Endpoint, common.IdentityKey) {
		if localID == "" {
			if ref, ok := refs[key]; ok {
				return ref.endpoint, ref.key
			}
			return schema.Endpoint{ID: string(key)}, ""
		}
		if ep, ok := endpoints[localID]; ok {
			return ep, keys[localID]
		}
		return schema.Endpoint{ID: localID}, ""
	}

	for _, r := range res.Relationships {
		src, srcKey := endpoint(r.SourceLocalID, r.SourceKey)
		dst, dstKey := endpoint(r.TargetLocalID, r.TargetKey)

		v := schema.ValidateRelationship(r, src, dst, cat)
		p.record(out, "relationship", v)
		if !v.Passed() {
			continue
		}
		batch.Edges = append(batch.Edges, graph.EdgeWrite{
			SourceKey:  srcKey,
			TargetKey:  dstKey,
			Type:       r.Type,
			Attributes: r.Attributes,
			Confidence: r.Confidence,
			Provenance: provenance(rec.ID, r.Provenance),
		})
	}
	return batch
}

type nodeRef struct {
	endpoint schema.Endpoint
	key      common.IdentityKey
}

// nodeRefs resolves relationship endpoints given as identity keys. Keys of
// nodes written by this record resolve to their entity, the rest are
// looked up in the graph in one read. Keys that cannot be parsed or found
// are left out and the relationship is rejected as missing an endpoint.
func (p *Pipeline) nodeRefs(
	ctx context.Context,
	recordID string,
	rels []common.CandidateRelationship,
	inBatch map[common.IdentityKey]schema.Endpoint,
	cat schema.Catalog,
) map[common.IdentityKey]nodeRef {
	refs := make(map[common.IdentityKey]nodeRef)
	pending := make(map[common.IdentityKey]common.IdentityKey)
	var lookup []common.IdentityKey

	add := func(localID string, raw common.IdentityKey) {
		if localID != "" || raw == "" {
			return
		}
		if _, ok := refs[raw]; ok {
			return
		}
		if _, ok := pending[raw]; ok {
			return
		}
		key, err := identity.ParseKey(string(raw), cat)
		if err != nil {
			logger.Debug("[Ingest] Unusable endpoint key", "record", recordID, "key", raw, "err", err)
			return
		}
		if ep, ok := inBatch[key]; ok {
			ep.ID = string(raw)
			refs[raw] = nodeRef{endpoint: ep, key: key}
			return
		}
		if !slices.Contains(lookup, key) {
			lookup = append(lookup, key)
		}
		pending[raw] = key
	}
	for _, r := range rels {
		add(r.SourceLocalID, r.SourceKey)
		add(r.TargetLocalID, r.TargetKey)
	}
	if len(lookup) == 0 {
		return refs
	}

	nodes, err := p.graph.Lookup(ctx, lookup)
	if err != nil {
		logger.Warn("[Ingest] Failed to look up existing nodes", "record", recordID, "keys", len(lookup), "err", err)
		return refs
	}
	for raw, key := range pending {
		if n, ok := nodes[key]; ok {
			refs[raw] = nodeRef{
				endpoint: schema.Endpoint{ID: string(raw), Type: n.Type, Preexisting: true},
				key:      key,
			}
		}
	}
	return refs
}

func (p *Pipeline) record(out *common.IngestionOutcome, kind string, v common.ValidationVerdict) {
	switch v.Status {
	case common.VerdictAccepted:
		out.Accepted++
	case common.VerdictWarned:
		out.Warned++
	case common.VerdictRejected:
		out.Rejected++
		logger.Debug("[Ingest] Candidate rejected", "record", out.RecordID, "subject", v.SubjectID, "violations", v.Violations)
	}
	for _, msg := range v.Violations {
		if len(out.Violations) >= p.maxViolations {
			break
		}
		out.Violations = append(out.Violations, string(v.Status)+" "+v.SubjectID+": "+msg)
	}
	if p.observer != nil {
		p.observer.Verdict(kind, v.Status)
	}
}

func (p *Pipeline) park(ctx context.Context, recordID string, e common.CandidateEntity, cause error) {
	item := common.ReviewItem{
		RecordID: recordID,
		Entity:   e,
		Reason:   cause.Error(),
		QueuedAt: p.now().UTC(),
	}
	if err := p.review.EnqueueReview(context.WithoutCancel(ctx), item); err != nil {
		logger.Warn("[Ingest] Failed to queue entity for review", "record", recordID, "entity", e.LocalID, "err", err)
	}
}

func provenance(recordID, p string) []string {
	if p == "" {
		return []string{recordID}
	}
	return []string{p}
}
