package neo4j

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4j properties cannot hold maps, so attributes and their sources are
// stored as JSON strings.

func nodeRow(n common.GraphNode) (map[string]any, error) {
	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return nil, fmt.Errorf("neo4j: encode attributes of %s: %w", n.Key, err)
	}
	sources, err := json.Marshal(n.AttributeSources)
	if err != nil {
		return nil, fmt.Errorf("neo4j: encode sources of %s: %w", n.Key, err)
	}
	return map[string]any{
		"key":     string(n.Key),
		"version": n.Version,
		"props": map[string]any{
			"type":            n.Type,
			"attributes_json": string(attrs),
			"sources_json":    string(sources),
			"confidence":      n.Confidence,
			"provenance":      stringsOrEmpty(n.Provenance),
			"search":          store.SearchText(n),
			"updated_at":      n.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

func edgeRow(e common.GraphEdge) (map[string]any, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return nil, fmt.Errorf("neo4j: encode attributes of edge %s: %w", e.EdgeID(), err)
	}
	sources, err := json.Marshal(e.AttributeSources)
	if err != nil {
		return nil, fmt.Errorf("neo4j: encode sources of edge %s: %w", e.EdgeID(), err)
	}
	return map[string]any{
		"id":      e.EdgeID(),
		"source":  string(e.SourceKey),
		"target":  string(e.TargetKey),
		"version": e.Version,
		"props": map[string]any{
			"type":            e.Type,
			"attributes_json": string(attrs),
			"sources_json":    string(sources),
			"confidence":      e.Confidence,
			"provenance":      stringsOrEmpty(e.Provenance),
			"updated_at":      e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

func stringsOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func propsOf(rec *neo4j.Record, key string) (map[string]any, error) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("neo4j: record has no %q", key)
	}
	props, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("neo4j: %q is %T, not a property map", key, v)
	}
	return props, nil
}

func nodeFromRecord(rec *neo4j.Record, key string) (common.GraphNode, error) {
	props, err := propsOf(rec, key)
	if err != nil {
		return common.GraphNode{}, err
	}
	return nodeFromProps(props)
}

func nodeFromProps(props map[string]any) (common.GraphNode, error) {
	n := common.GraphNode{
		Key:        common.IdentityKey(toString(props["key"])),
		Type:       toString(props["type"]),
		Confidence: toFloat64(props["confidence"]),
		Provenance: toStrings(props["provenance"]),
		UpdatedAt:  toTime(props["updated_at"]),
		Version:    toInt64(props["version"]),
	}
	if err := decodeJSON(props["attributes_json"], &n.Attributes); err != nil {
		return n, fmt.Errorf("neo4j: decode attributes of %s: %w", n.Key, err)
	}
	if err := decodeJSON(props["sources_json"], &n.AttributeSources); err != nil {
		return n, fmt.Errorf("neo4j: decode sources of %s: %w", n.Key, err)
	}
	return n, nil
}

func edgeFromRecord(rec *neo4j.Record) (common.GraphEdge, error) {
	src, _ := rec.Get("source")
	dst, _ := rec.Get("target")
	return edgeFromProps(rec, common.IdentityKey(toString(src)), common.IdentityKey(toString(dst)))
}

func edgeFromProps(rec *neo4j.Record, source, target common.IdentityKey) (common.GraphEdge, error) {
	props, err := propsOf(rec, "r")
	if err != nil {
		return common.GraphEdge{}, err
	}
	e := common.GraphEdge{
		SourceKey:  source,
		TargetKey:  target,
		Type:       toString(props["type"]),
		Confidence: toFloat64(props["confidence"]),
		Provenance: toStrings(props["provenance"]),
		UpdatedAt:  toTime(props["updated_at"]),
		Version:    toInt64(props["version"]),
	}
	if err := decodeJSON(props["attributes_json"], &e.Attributes); err != nil {
		return e, fmt.Errorf("neo4j: decode edge attributes: %w", err)
	}
	if err := decodeJSON(props["sources_json"], &e.AttributeSources); err != nil {
		return e, fmt.Errorf("neo4j: decode edge sources: %w", err)
	}
	return e, nil
}

func decodeJSON(v any, out any) error {
	s := toString(v)
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func toStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toTime(v any) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, toString(v))
	return t
}
