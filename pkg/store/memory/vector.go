package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
)

// VectorStore is a brute force cosine index.
type VectorStore struct {
	mu     sync.RWMutex
	chunks map[string]common.IndexedChunk
}

func NewVectorStore() *VectorStore {
	return &VectorStore{chunks: make(map[string]common.IndexedChunk)}
}

func (s *VectorStore) Upsert(ctx context.Context, chunks []common.IndexedChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ChunkID == "" {
			return fmt.Errorf("chunk without id for record %s", c.RecordID)
		}
		c.Vector = append([]float32(nil), c.Vector...)
		s.chunks[c.ChunkID] = c
	}
	return nil
}

func (s *VectorStore) ContentHashes(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := s.chunks[id]; ok {
			out[id] = c.ContentHash
		}
	}
	return out, nil
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, limit int) ([]store.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		score := Cosine(vector, c.Vector)
		if score <= 0 {
			continue
		}
		out = append(out, store.ScoredChunk{Chunk: c, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *VectorStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
