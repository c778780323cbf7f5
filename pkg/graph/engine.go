package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
)

// NodeWrite is an accepted entity with its resolved identity key.
type NodeWrite struct {
	Key        common.IdentityKey
	Type       string
	Attributes map[string]common.Value
	Confidence float64
	Provenance []string
}

// EdgeWrite is an accepted relationship between two resolved keys.
type EdgeWrite struct {
	SourceKey  common.IdentityKey
	TargetKey  common.IdentityKey
	Type       string
	Attributes map[string]common.Value
	Confidence float64
	Provenance []string
}

// Batch is everything one record contributes to the graph.
type Batch struct {
	RecordID    string
	RetrievedAt time.Time
	Nodes       []NodeWrite
	Edges       []EdgeWrite
}

type CommitResult struct {
	NodesCreated int
	NodesUpdated int
	EdgesCreated int
	EdgesUpdated int
	// Unchanged counts nodes and edges the batch did not alter.
	Unchanged int
	Attempts  int
}

// ErrInvalidBatch is returned for a write without an identity key or an
// edge without both endpoint keys and a type. Nothing of the batch is
// committed.
var ErrInvalidBatch = errors.New("invalid graph batch")

// Lookup returns the stored nodes for keys. Missing keys are absent from
// the map.
func (e *Engine) Lookup(ctx context.Context, keys []common.IdentityKey) (map[common.IdentityKey]common.GraphNode, error) {
	if len(keys) == 0 {
		return map[common.IdentityKey]common.GraphNode{}, nil
	}
	return e.store.Nodes(ctx, keys)
}

// Upsert merges the batch into the graph and commits it atomically.
// Conflicting concurrent writes are re-read and re-merged with backoff.
func (e *Engine) Upsert(ctx context.Context, batch Batch) (CommitResult, error) {
	nodes, edges, err := collapse(batch)
	if err != nil {
		return CommitResult{}, fmt.Errorf("upsert record %s: %w", batch.RecordID, err)
	}
	if len(nodes) == 0 && len(edges) == 0 {
		return CommitResult{}, nil
	}

	lockKeys := make([]string, 0, len(nodes)+len(edges))
	for _, n := range nodes {
		lockKeys = append(lockKeys, "node:"+string(n.Key))
	}
	for _, ed := range edges {
		lockKeys = append(lockKeys, "edge:"+common.EdgeID(ed.SourceKey, ed.TargetKey, ed.Type))
	}
	release, err := e.locker.LockKeys(ctx, lockKeys)
	if err != nil {
		return CommitResult{}, fmt.Errorf("lock keys for record %s: %w", batch.RecordID, err)
	}
	defer release()

	src := common.AttributeSource{RecordID: batch.RecordID, RetrievedAt: batch.RetrievedAt}
	attempts := 0
	res, err := util.RetryWithBackoff(ctx, util.BackoffParams{
		MaxTries:        e.maxRetries,
		InitialInterval: e.retryBackoff,
		MaxInterval:     50 * e.retryBackoff,
		Retryable: func(err error) bool {
			return errors.Is(err, store.ErrUpsertConflict)
		},
		OnRetry: func(err error, wait time.Duration) {
			logger.Warn("[Graph] Upsert conflict, retrying", "record", batch.RecordID, "wait", wait, "err", err)
			if e.onConflict != nil {
				e.onConflict(batch.RecordID, err)
			}
		},
	}, func(ctx context.Context) (CommitResult, error) {
		attempts++
		return e.attempt(ctx, batch.RecordID, nodes, edges, src)
	})
	res.Attempts = attempts
	if err != nil {
		return res, fmt.Errorf("upsert record %s: %w", batch.RecordID, err)
	}
	logger.Debug("[Graph] Batch committed",
		"record", batch.RecordID,
		"nodes_created", res.NodesCreated,
		"nodes_updated", res.NodesUpdated,
		"edges_created", res.EdgesCreated,
		"edges_updated", res.EdgesUpdated,
		"attempts", attempts,
	)
	return res, nil
}

func (e *Engine) attempt(
	ctx context.Context,
	recordID string,
	nodes []NodeWrite,
	edges []EdgeWrite,
	src common.AttributeSource,
) (CommitResult, error) {
	keys := make([]common.IdentityKey, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key
	}
	ids := make([]string, len(edges))
	for i, ed := range edges {
		ids[i] = common.EdgeID(ed.SourceKey, ed.TargetKey, ed.Type)
	}

	existingNodes, err := e.store.Nodes(ctx, keys)
	if err != nil {
		return CommitResult{}, fmt.Errorf("read nodes: %w", err)
	}
	existingEdges, err := e.store.Edges(ctx, ids)
	if err != nil {
		return CommitResult{}, fmt.Errorf("read edges: %w", err)
	}

	now := e.now().UTC()
	var res CommitResult
	out := store.GraphBatch{RecordID: recordID}
	for _, w := range nodes {
		var cur *common.GraphNode
		if n, ok := existingNodes[w.Key]; ok {
			cur = &n
		}
		merged, changed := mergeNode(cur, w, src)
		if !changed {
			res.Unchanged++
			continue
		}
		merged.UpdatedAt = now
		out.Nodes = append(out.Nodes, merged)
		if cur == nil {
			res.NodesCreated++
		} else {
			res.NodesUpdated++
		}
	}
	for i, w := range edges {
		var cur *common.GraphEdge
		if ed, ok := existingEdges[ids[i]]; ok {
			cur = &ed
		}
		merged, changed := mergeEdge(cur, w, src)
		if !changed {
			res.Unchanged++
			continue
		}
		merged.UpdatedAt = now
		out.Edges = append(out.Edges, merged)
		if cur == nil {
			res.EdgesCreated++
		} else {
			res.EdgesUpdated++
		}
	}

	if len(out.Nodes) == 0 && len(out.Edges) == 0 {
		return res, nil
	}
	if err := e.store.Commit(ctx, out); err != nil {
		return CommitResult{}, err
	}
	return res, nil
}

// collapse merges writes for the same key or edge inside one batch, in
// input order, so the store sees each at most once.
func collapse(batch Batch) ([]NodeWrite, []EdgeWrite, error) {
	nodeIdx := make(map[common.IdentityKey]int)
	var nodes []NodeWrite
	for i, w := range batch.Nodes {
		if w.Key == "" {
			return nil, nil, fmt.Errorf("%w: node %d has no identity key", ErrInvalidBatch, i)
		}
		i, ok := nodeIdx[w.Key]
		if !ok {
			nodeIdx[w.Key] = len(nodes)
			w.Attributes = common.CloneValues(w.Attributes)
			w.Provenance = slices.Clone(w.Provenance)
			nodes = append(nodes, w)
			continue
		}
		n := &nodes[i]
		if n.Attributes == nil {
			n.Attributes = make(map[string]common.Value)
		}
		for k, v := range w.Attributes {
			n.Attributes[k] = v
		}
		n.Confidence = max(n.Confidence, w.Confidence)
		n.Provenance, _ = unionProvenance(n.Provenance, w.Provenance...)
	}

	edgeIdx := make(map[string]int)
	var edges []EdgeWrite
	for i, w := range batch.Edges {
		if w.SourceKey == "" || w.TargetKey == "" || w.Type == "" {
			return nil, nil, fmt.Errorf("%w: edge %d %q-[%s]->%q is incomplete", ErrInvalidBatch, i, w.SourceKey, w.Type, w.TargetKey)
		}
		id := common.EdgeID(w.SourceKey, w.TargetKey, w.Type)
		i, ok := edgeIdx[id]
		if !ok {
			edgeIdx[id] = len(edges)
			w.Attributes = common.CloneValues(w.Attributes)
			w.Provenance = slices.Clone(w.Provenance)
			edges = append(edges, w)
			continue
		}
		ed := &edges[i]
		if ed.Attributes == nil {
			ed.Attributes = make(map[string]common.Value)
		}
		for k, v := range w.Attributes {
			ed.Attributes[k] = v
		}
		ed.Confidence = max(ed.Confidence, w.Confidence)
		ed.Provenance, _ = unionProvenance(ed.Provenance, w.Provenance...)
	}
	return nodes, edges, nil
}
