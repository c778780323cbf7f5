// Package chromem implements store.VectorStore on an embedded chromem-go
// collection, optionally persisted to disk.
package chromem

import (
	"context"
	"fmt"
	"runtime"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"github.com/philippgille/chromem-go"
)

const defaultCollection = "chunks"

type VectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

type VectorStoreParams struct {
	// Path enables persistence. Empty keeps the collection in memory.
	Path       string
	Compress   bool
	Collection string
}

func NewVectorStore(params VectorStoreParams) (*VectorStore, error) {
	var db *chromem.DB
	if params.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(params.Path, params.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}
	name := params.Collection
	if name == "" {
		name = defaultCollection
	}
	c, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &VectorStore{db: db, collection: c}, nil
}

func (s *VectorStore) Upsert(ctx context.Context, chunks []common.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      c.ChunkID,
			Content: c.Text,
			Metadata: map[string]string{
				"record_id":    c.RecordID,
				"content_hash": c.ContentHash,
			},
			Embedding: c.Vector,
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	return nil
}

func (s *VectorStore) ContentHashes(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(chunkIDs))
	for _, id := range chunkIDs {
		doc, err := s.collection.GetByID(ctx, id)
		if err != nil {
			// chromem reports a missing id as an error
			continue
		}
		out[id] = doc.Metadata["content_hash"]
	}
	return out, nil
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, limit int) ([]store.ScoredChunk, error) {
	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	results, err := s.collection.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	out := make([]store.ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Similarity <= 0 {
			continue
		}
		out = append(out, store.ScoredChunk{
			Chunk: common.IndexedChunk{
				ChunkID:     r.ID,
				RecordID:    r.Metadata["record_id"],
				ContentHash: r.Metadata["content_hash"],
				Text:        r.Content,
			},
			Score: float64(r.Similarity),
		})
	}
	return out, nil
}

func (s *VectorStore) Count(ctx context.Context) (int64, error) {
	return int64(s.collection.Count()), nil
}
