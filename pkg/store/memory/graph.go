// Package memory implements the store interfaces in process memory. It is
// used by tests, the CLI and single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
)

type GraphStore struct {
	mu     sync.RWMutex
	nodes  map[common.IdentityKey]common.GraphNode
	search map[common.IdentityKey]string
	edges  map[string]common.GraphEdge
	// adjacency by node key to edge ids
	adj map[common.IdentityKey]map[string]struct{}
}

func NewGraphStore() *GraphStore {
	return &GraphStore{
		nodes:  make(map[common.IdentityKey]common.GraphNode),
		search: make(map[common.IdentityKey]string),
		edges:  make(map[string]common.GraphEdge),
		adj:    make(map[common.IdentityKey]map[string]struct{}),
	}
}

func (s *GraphStore) Nodes(ctx context.Context, keys []common.IdentityKey) (map[common.IdentityKey]common.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.IdentityKey]common.GraphNode, len(keys))
	for _, k := range keys {
		if n, ok := s.nodes[k]; ok {
			out[k] = cloneNode(n)
		}
	}
	return out, nil
}

func (s *GraphStore) Edges(ctx context.Context, ids []string) (map[string]common.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]common.GraphEdge, len(ids))
	for _, id := range ids {
		if e, ok := s.edges[id]; ok {
			out[id] = cloneEdge(e)
		}
	}
	return out, nil
}

// Commit checks every version first and only then applies the batch, so a
// conflict leaves the store untouched.
func (s *GraphStore) Commit(ctx context.Context, batch store.GraphBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range batch.Nodes {
		if cur := s.nodes[n.Key].Version; cur != n.Version {
			return fmt.Errorf("%w: node %s at version %d, batch read %d", store.ErrUpsertConflict, n.Key, cur, n.Version)
		}
	}
	for _, e := range batch.Edges {
		if cur := s.edges[e.EdgeID()].Version; cur != e.Version {
			return fmt.Errorf("%w: edge %s at version %d, batch read %d", store.ErrUpsertConflict, e.EdgeID(), cur, e.Version)
		}
		for _, k := range []common.IdentityKey{e.SourceKey, e.TargetKey} {
			if _, ok := s.nodes[k]; !ok && !batchHasNode(batch, k) {
				return fmt.Errorf("edge %s references unknown node %s", e.EdgeID(), k)
			}
		}
	}

	for _, n := range batch.Nodes {
		n = cloneNode(n)
		n.Version++
		s.nodes[n.Key] = n
		s.search[n.Key] = store.SearchText(n)
	}
	for _, e := range batch.Edges {
		e = cloneEdge(e)
		e.Version++
		id := e.EdgeID()
		s.edges[id] = e
		for _, k := range []common.IdentityKey{e.SourceKey, e.TargetKey} {
			if s.adj[k] == nil {
				s.adj[k] = make(map[string]struct{})
			}
			s.adj[k][id] = struct{}{}
		}
	}
	return nil
}

func batchHasNode(batch store.GraphBatch, k common.IdentityKey) bool {
	for _, n := range batch.Nodes {
		if n.Key == k {
			return true
		}
	}
	return false
}

// Query returns the edges touching matched nodes, ordered by matched
// endpoints then confidence, followed by matched nodes without edges.
func (s *GraphStore) Query(ctx context.Context, q store.GraphQuery) ([]store.GraphFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make(map[common.IdentityKey]bool)
	keys := make([]common.IdentityKey, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if store.Matches(s.nodes[k], q, s.search[k]) > 0 {
			matched[k] = true
		}
	}

	var facts []store.GraphFact
	seen := make(map[string]bool)
	for _, k := range keys {
		if !matched[k] {
			continue
		}
		hasEdge := false
		ids := make([]string, 0, len(s.adj[k]))
		for id := range s.adj[k] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := s.edges[id]
			if !store.RelTypeAllowed(q, e.Type) {
				continue
			}
			hasEdge = true
			if seen[id] {
				continue
			}
			seen[id] = true
			m := 0
			if matched[e.SourceKey] {
				m++
			}
			if matched[e.TargetKey] {
				m++
			}
			edge := cloneEdge(e)
			facts = append(facts, store.GraphFact{
				Source:  cloneNode(s.nodes[e.SourceKey]),
				Edge:    &edge,
				Target:  cloneNode(s.nodes[e.TargetKey]),
				Matched: m,
			})
		}
		if !hasEdge && len(q.RelTypes) == 0 {
			facts = append(facts, store.GraphFact{Source: cloneNode(s.nodes[k]), Matched: 1})
		}
	}

	sort.SliceStable(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if (a.Edge == nil) != (b.Edge == nil) {
			return a.Edge != nil
		}
		if a.Matched != b.Matched {
			return a.Matched > b.Matched
		}
		if a.Edge != nil && a.Edge.Confidence != b.Edge.Confidence {
			return a.Edge.Confidence > b.Edge.Confidence
		}
		return false
	})
	if q.Limit > 0 && len(facts) > q.Limit {
		facts = facts[:q.Limit]
	}
	return facts, nil
}

func (s *GraphStore) Counts(ctx context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.nodes)), int64(len(s.edges)), nil
}

func cloneNode(n common.GraphNode) common.GraphNode {
	n.Attributes = common.CloneValues(n.Attributes)
	n.AttributeSources = cloneSources(n.AttributeSources)
	n.Provenance = append([]string(nil), n.Provenance...)
	return n
}

func cloneEdge(e common.GraphEdge) common.GraphEdge {
	e.Attributes = common.CloneValues(e.Attributes)
	e.AttributeSources = cloneSources(e.AttributeSources)
	e.Provenance = append([]string(nil), e.Provenance...)
	return e
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
