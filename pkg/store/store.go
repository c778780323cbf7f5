// Package store declares the persistence capabilities the pipeline and the
// query engine depend on. Adapters live in the sub packages.
package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

var (
	// ErrUpsertConflict reports a concurrent write to a node or edge read by
	// the batch. The batch can be re-read, re-merged and retried.
	ErrUpsertConflict = errors.New("upsert conflict")
	ErrNotFound       = errors.New("not found")
)

// GraphBatch is the merged write set of one record. Each node and edge
// carries the Version it was read at; zero means it did not exist.
type GraphBatch struct {
	RecordID string
	Nodes    []common.GraphNode
	Edges    []common.GraphEdge
}

// GraphQuery selects nodes by key or by terms found in their attribute
// values, plus the edges touching them.
type GraphQuery struct {
	Keys     []common.IdentityKey
	Terms    []string
	RelTypes []string
	Limit    int
}

// GraphFact is one edge with both endpoints, or a lone node when Edge is
// nil. Matched counts how many endpoints satisfied the query.
type GraphFact struct {
	Source  common.GraphNode
	Edge    *common.GraphEdge
	Target  common.GraphNode
	Matched int
}

type GraphStore interface {
	// Nodes returns the stored nodes for keys; absent keys are omitted.
	Nodes(ctx context.Context, keys []common.IdentityKey) (map[common.IdentityKey]common.GraphNode, error)
	// Edges returns the stored edges by EdgeID; absent ids are omitted.
	Edges(ctx context.Context, ids []string) (map[string]common.GraphEdge, error)
	// Commit writes the batch atomically or not at all. A version mismatch
	// yields ErrUpsertConflict.
	Commit(ctx context.Context, batch GraphBatch) error
	Query(ctx context.Context, q GraphQuery) ([]GraphFact, error)
	Counts(ctx context.Context) (nodes int64, edges int64, err error)
}

type ScoredChunk struct {
	Chunk common.IndexedChunk
	Score float64
}

type VectorStore interface {
	Upsert(ctx context.Context, chunks []common.IndexedChunk) error
	// ContentHashes returns the stored content hash per chunk id.
	ContentHashes(ctx context.Context, chunkIDs []string) (map[string]string, error)
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredChunk, error)
	Count(ctx context.Context) (int64, error)
}

// HistoryStore keeps ingestion outcomes, answered queries and the manual
// identity review queue.
type HistoryStore interface {
	// SaveOutcome inserts or replaces the outcome of a record.
	SaveOutcome(ctx context.Context, outcome common.IngestionOutcome) error
	Outcome(ctx context.Context, recordID string) (common.IngestionOutcome, error)
	ListOutcomes(ctx context.Context, limit int) ([]common.IngestionOutcome, error)

	SaveQuery(ctx context.Context, rec common.QueryRecord) error
	ListQueries(ctx context.Context, limit int) ([]common.QueryRecord, error)

	EnqueueReview(ctx context.Context, item common.ReviewItem) error
	ListReview(ctx context.Context, limit int) ([]common.ReviewItem, error)
}

// Stats projects store sizes.
func Stats(ctx context.Context, g GraphStore, v VectorStore) (common.Stats, error) {
	nodes, edges, err := g.Counts(ctx)
	if err != nil {
		return common.Stats{}, err
	}
	chunks, err := v.Count(ctx)
	if err != nil {
		return common.Stats{}, err
	}
	return common.Stats{Nodes: nodes, Edges: edges, Chunks: chunks}, nil
}
