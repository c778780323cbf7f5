package store

import (
	"sort"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SearchText is the lower-cased, space separated attribute values of a
// node, sorted by attribute name. Stores match GraphQuery terms against it.
func SearchText(n common.GraphNode) string {
	names := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	for _, k := range names {
		if s := n.Attributes[k].String(); s != "" {
			parts = append(parts, strings.ToLower(s))
		}
	}
	return " " + strings.Join(strings.Fields(strings.Join(parts, " ")), " ") + " "
}

// MatchesTerm reports whether term occurs as whole words in a SearchText.
func MatchesTerm(searchText, term string) bool {
	term = strings.Join(strings.Fields(strings.ToLower(term)), " ")
	if term == "" {
		return false
	}
	return strings.Contains(searchText, " "+term+" ")
}

// Matches counts how well a node satisfies q: 1 when its key is listed or
// any term matches, else 0.
func Matches(n common.GraphNode, q GraphQuery, searchText string) int {
	for _, k := range q.Keys {
		if k == n.Key {
			return 1
		}
	}
	for _, t := range q.Terms {
		if MatchesTerm(searchText, t) {
			return 1
		}
	}
	return 0
}

// RelTypeAllowed reports whether an edge type passes the RelTypes filter.
func RelTypeAllowed(q GraphQuery, relType string) bool {
	if len(q.RelTypes) == 0 {
		return true
	}
	for _, t := range q.RelTypes {
		if t == relType {
			return true
		}
	}
	return false
}
