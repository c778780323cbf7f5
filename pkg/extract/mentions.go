package extract

import (
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

// Mentions returns the substances, hazards and container materials named in
// text, without relationships. Unlike Extract it needs no subject
// substance, so it suits short questions.
func Mentions(text string) []common.CandidateEntity {
	b := newBuilder("query")
	for _, s := range sentences(text) {
		found := findSubstances(b, s.text, s.offset)
		if len(found) > 0 {
			extractProperties(b, found[0].id, s.text)
		}
		for _, class := range findHazards(s.text) {
			b.hazard(class, s.offset, confHazard)
		}
		for _, m := range findMaterials(strings.ToLower(s.text)) {
			b.container(m, s.offset, confMention)
		}
	}
	return b.entities
}
