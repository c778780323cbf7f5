// Package schema validates candidate entities and relationships against an
// injected, versioned constraint catalog.
package schema

import (
	"fmt"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

// Endpoint describes what is known about one end of a relationship when it
// is validated.
type Endpoint struct {
	ID   string
	Type string
	// Status is the verdict of the endpoint entity in the same record, empty
	// when the entity was not part of the record.
	Status common.VerdictStatus
	// Unresolved marks an accepted entity whose identity could not be
	// computed; it will not be merged.
	Unresolved bool
	// Preexisting marks an endpoint that already exists in the graph.
	Preexisting bool
}

// ValidateEntity evaluates every constraint for the entity's type and
// collects all violations in catalog order.
func ValidateEntity(e common.CandidateEntity, cat Catalog) common.ValidationVerdict {
	var c collector
	if !cat.HasType(e.Type) {
		c.add(fmt.Sprintf("type: unknown entity type %q", e.Type), SeveritySoft)
	}
	for _, con := range cat.ConstraintsFor(e.Type) {
		if con.Kind == KindEndpoints {
			continue
		}
		if msg := con.checkAttributes(e.Attributes); msg != "" {
			c.add(msg, con.EffectiveSeverity())
		}
	}
	return c.verdict(e.LocalID, cat.Version())
}

// ValidateRelationship evaluates the relationship's constraints. An
// endpoint that was rejected, could not be resolved or is missing from both
// the record and the graph rejects the relationship too.
func ValidateRelationship(r common.CandidateRelationship, source, target Endpoint, cat Catalog) common.ValidationVerdict {
	var c collector
	for _, ep := range []Endpoint{source, target} {
		switch {
		case ep.Status == common.VerdictRejected:
			c.add(fmt.Sprintf("endpoint %s rejected", ep.ID), SeverityHard)
		case ep.Unresolved:
			c.add(fmt.Sprintf("endpoint %s unresolved", ep.ID), SeverityHard)
		case ep.Status == "" && !ep.Preexisting:
			c.add(fmt.Sprintf("endpoint %s missing", ep.ID), SeverityHard)
		}
	}

	if !cat.HasType(r.Type) {
		c.add(fmt.Sprintf("type: unknown relationship type %q", r.Type), SeveritySoft)
	}
	for _, con := range cat.ConstraintsFor(r.Type) {
		if con.Kind == KindEndpoints {
			for _, msg := range con.checkEndpoints(r.Type, source.Type, target.Type) {
				c.add(msg, con.EffectiveSeverity())
			}
			continue
		}
		if msg := con.checkAttributes(r.Attributes); msg != "" {
			c.add(msg, con.EffectiveSeverity())
		}
	}
	return c.verdict(r.SubjectID(), cat.Version())
}

type collector struct {
	violations []string
	hard       bool
}

func (c *collector) add(msg string, sev Severity) {
	c.violations = append(c.violations, msg)
	if sev == SeverityHard {
		c.hard = true
	}
}

func (c *collector) verdict(subject string, version int64) common.ValidationVerdict {
	status := common.VerdictAccepted
	switch {
	case c.hard:
		status = common.VerdictRejected
	case len(c.violations) > 0:
		status = common.VerdictWarned
	}
	return common.ValidationVerdict{
		SubjectID:      subject,
		Status:         status,
		Violations:     c.violations,
		CatalogVersion: version,
	}
}
