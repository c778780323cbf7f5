package query

import (
	"regexp"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/extract"
	"github.com/OFFIS-RIT/hazgraph/pkg/identity"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
)

// StructuredFilters narrow the graph path.
type StructuredFilters struct {
	Keys     []common.IdentityKey
	Terms    []string
	RelTypes []string
}

// Decision says which retrieval paths to run.
type Decision struct {
	Semantic   bool
	Graph      bool
	Filters    StructuredFilters
	Confidence float64
	Reason     string
}

// Paths lists the enabled paths in a stable order.
func (d Decision) Paths() []common.ResultKind {
	var out []common.ResultKind
	if d.Semantic {
		out = append(out, common.ResultSemantic)
	}
	if d.Graph {
		out = append(out, common.ResultGraph)
	}
	return out
}

// lowConfidence routes to both paths below this classification confidence.
const lowConfidence = 0.7

var (
	quotedRe = regexp.MustCompile(`["“”]([^"“”]{2,})["“”]`)
	casRe    = regexp.MustCompile(`\b\d{2,7}-\d{2}-\d\b`)
	openRe   = regexp.MustCompile(`(?i)^\s*(what|why|how|explain|describe|tell me)\b`)
)

type relationalCue struct {
	re       *regexp.Regexp
	relTypes []string
}

var relationalCues = []relationalCue{
	{regexp.MustCompile(`(?i)\bincompatib`), []string{"IS_INCOMPATIBLE_WITH"}},
	{regexp.MustCompile(`(?i)\bcompatib`), []string{"IS_COMPATIBLE_WITH", "IS_INCOMPATIBLE_WITH"}},
	{regexp.MustCompile(`(?i)\b(contain|store|storage|suitable for|kept in)`), []string{"IS_COMPATIBLE_WITH", "IS_INCOMPATIBLE_WITH", "STORED_IN"}},
	{regexp.MustCompile(`(?i)\breact`), []string{"REACTS_WITH"}},
	{regexp.MustCompile(`(?i)\b(compare|comparison|versus|vs\.?)\b`), nil},
}

// Router classifies questions. It never touches a store.
type Router struct {
	resolver *identity.Resolver
}

func NewRouter(catalog schema.Catalog) *Router {
	return &Router{resolver: identity.NewResolver(catalog)}
}

func (r *Router) Route(req common.QueryRequest) Decision {
	q := req.Question
	var f StructuredFilters

	for _, e := range extract.Mentions(q) {
		if key, err := r.resolver.Resolve(e); err == nil {
			f.Keys = append(f.Keys, key)
		}
		for _, attr := range []string{"name", "formula", "cas"} {
			if v, ok := e.Attributes[attr]; ok && v.String() != "" {
				f.Terms = append(f.Terms, strings.ToLower(v.String()))
			}
		}
	}
	for _, m := range quotedRe.FindAllStringSubmatch(q, -1) {
		f.Terms = append(f.Terms, strings.ToLower(strings.TrimSpace(m[1])))
	}
	f.Terms = append(f.Terms, casRe.FindAllString(q, -1)...)

	for name, value := range req.Filters {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(name) {
		case "relation", "rel_type":
			f.RelTypes = append(f.RelTypes, strings.ToUpper(value))
		case "key":
			f.Keys = append(f.Keys, common.IdentityKey(value))
		default:
			f.Terms = append(f.Terms, strings.ToLower(value))
		}
	}

	relational := false
	for _, cue := range relationalCues {
		if cue.re.MatchString(q) {
			relational = true
			f.RelTypes = append(f.RelTypes, cue.relTypes...)
		}
	}

	f.Keys = dedupeKeys(f.Keys)
	f.Terms = dedupeSorted(f.Terms)
	f.RelTypes = dedupeSorted(f.RelTypes)

	identityRef := len(f.Keys) > 0 || len(f.Terms) > 0
	open := openRe.MatchString(q)

	d := Decision{Filters: f}
	switch {
	case (identityRef || relational) && !open:
		d.Graph = true
		d.Confidence = 0.75
		if identityRef && relational {
			d.Confidence = 0.9
		}
		d.Reason = "identity or relational reference"
	case open && !identityRef && !relational:
		d.Semantic = true
		d.Confidence = 0.8
		d.Reason = "open question"
	case open:
		d.Confidence = 0.55
		d.Reason = "open question with graph references"
	default:
		d.Confidence = 0.4
		d.Reason = "no clear signal"
	}
	if d.Confidence < lowConfidence {
		d.Semantic, d.Graph = true, true
	}
	return d
}

func dedupeSorted(in []string) []string {
	out := slices.Clone(in)
	out = slices.DeleteFunc(out, func(s string) bool { return s == "" })
	slices.Sort(out)
	return slices.Compact(out)
}

func dedupeKeys(in []common.IdentityKey) []common.IdentityKey {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
