package graph

import (
	"slices"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

// mergeAttributes applies incoming values per attribute. An attribute is
// overwritten only when src is newer than the source that last wrote it.
// It reports whether anything changed.
func mergeAttributes(
	values map[string]common.Value,
	sources map[string]common.AttributeSource,
	incoming map[string]common.Value,
	src common.AttributeSource,
) bool {
	changed := false
	for _, name := range sortedNames(incoming) {
		prev, hasSrc := sources[name]
		if hasSrc && !src.Newer(prev) {
			continue
		}
		v := incoming[name]
		if cur, had := values[name]; !had || !cur.Equal(v) {
			values[name] = v
			changed = true
		}
		if !hasSrc || !sameSource(prev, src) {
			sources[name] = src
			changed = true
		}
	}
	return changed
}

func sameSource(a, b common.AttributeSource) bool {
	return a.RecordID == b.RecordID && a.RetrievedAt.Equal(b.RetrievedAt)
}

func sortedNames(m map[string]common.Value) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func unionProvenance(have []string, add ...string) ([]string, bool) {
	changed := false
	for _, p := range add {
		if p == "" || slices.Contains(have, p) {
			continue
		}
		have = append(have, p)
		changed = true
	}
	return have, changed
}

// mergeNode folds w into existing, or creates a node when existing is nil.
// The returned node keeps the version it was read at.
func mergeNode(existing *common.GraphNode, w NodeWrite, src common.AttributeSource) (common.GraphNode, bool) {
	var n common.GraphNode
	if existing != nil {
		n = *existing
		n.Attributes = common.CloneValues(existing.Attributes)
		n.AttributeSources = cloneSources(existing.AttributeSources)
		n.Provenance = slices.Clone(existing.Provenance)
	} else {
		n = common.GraphNode{Key: w.Key, Type: w.Type}
	}
	if n.Attributes == nil {
		n.Attributes = make(map[string]common.Value)
	}
	if n.AttributeSources == nil {
		n.AttributeSources = make(map[string]common.AttributeSource)
	}

	changed := existing == nil
	if mergeAttributes(n.Attributes, n.AttributeSources, w.Attributes, src) {
		changed = true
	}
	if w.Confidence > n.Confidence {
		n.Confidence = w.Confidence
		changed = true
	}
	var added bool
	n.Provenance, added = unionProvenance(n.Provenance, w.Provenance...)
	return n, changed || added
}

func mergeEdge(existing *common.GraphEdge, w EdgeWrite, src common.AttributeSource) (common.GraphEdge, bool) {
	var e common.GraphEdge
	if existing != nil {
		e = *existing
		e.Attributes = common.CloneValues(existing.Attributes)
		e.AttributeSources = cloneSources(existing.AttributeSources)
		e.Provenance = slices.Clone(existing.Provenance)
	} else {
		e = common.GraphEdge{SourceKey: w.SourceKey, TargetKey: w.TargetKey, Type: w.Type}
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]common.Value)
	}
	if e.AttributeSources == nil {
		e.AttributeSources = make(map[string]common.AttributeSource)
	}

	changed := existing == nil
	if mergeAttributes(e.Attributes, e.AttributeSources, w.Attributes, src) {
		changed = true
	}
	if w.Confidence > e.Confidence {
		e.Confidence = w.Confidence
		changed = true
	}
	var added bool
	e.Provenance, added = unionProvenance(e.Provenance, w.Provenance...)
	return e, changed || added
}

func cloneSources(in map[string]common.AttributeSource) map[string]common.AttributeSource {
	if in == nil {
		return nil
	}
	out := make(map[string]common.AttributeSource, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
