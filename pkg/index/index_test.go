package index

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/OFFIS-RIT/hazgraph/pkg/ai/local"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store/memory"
)

type countingProvider struct {
	inner EmbeddingProvider
	calls atomic.Int32
	texts atomic.Int32
	fail  bool
}

func (c *countingProvider) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(inputs)))
	if c.fail {
		return nil, errors.New("provider down")
	}
	return c.inner.GenerateEmbeddings(ctx, inputs)
}

func chunksOf(recordID string, texts ...string) []common.Chunk {
	out := make([]common.Chunk, len(texts))
	for i, t := range texts {
		out[i] = common.Chunk{ID: common.ChunkID(recordID, i, t), RecordID: recordID, Sequence: i, Text: t}
	}
	return out
}

func TestIndexSkipsUnchangedContent(t *testing.T) {
	ctx := context.Background()
	vs := memory.NewVectorStore()
	p := &countingProvider{inner: local.NewHashEmbedder(64)}
	ix := NewIndexer(NewIndexerParams{Provider: p, Store: vs, BatchSize: 2})

	chunks := chunksOf("r1", "Sulfuric acid is corrosive.", "Store it in glass.", "Keep away from steel.")
	res, err := ix.Index(ctx, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 3 || res.Skipped != 0 || p.calls.Load() != 2 {
		t.Fatalf("first = %+v, calls = %d", res, p.calls.Load())
	}

	res, err = ix.Index(ctx, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 0 || res.Skipped != 3 || p.texts.Load() != 3 {
		t.Fatalf("second = %+v, texts = %d", res, p.texts.Load())
	}
	if n, _ := vs.Count(ctx); n != 3 {
		t.Fatalf("count = %d", n)
	}
}

func TestIndexFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	vs := memory.NewVectorStore()
	ix := NewIndexer(NewIndexerParams{Provider: &countingProvider{fail: true}, Store: vs})

	_, err := ix.Index(ctx, chunksOf("r1", "text"))
	if !errors.Is(err, ErrIndexingFailure) {
		t.Fatalf("err = %v", err)
	}
	if n, _ := vs.Count(ctx); n != 0 {
		t.Fatalf("count = %d", n)
	}
}

func TestIndexedChunkIsSearchable(t *testing.T) {
	ctx := context.Background()
	vs := memory.NewVectorStore()
	ix := NewIndexer(NewIndexerParams{Provider: local.NewHashEmbedder(128), Store: vs})

	if _, err := ix.Index(ctx, chunksOf("r1", "Sulfuric acid is corrosive to steel.", "Ethanol is flammable.")); err != nil {
		t.Fatal(err)
	}
	vec, err := ix.EmbedQuery(ctx, "is sulfuric acid corrosive")
	if err != nil {
		t.Fatal(err)
	}
	hits, _ := vs.Search(ctx, vec, 1)
	if len(hits) != 1 || hits[0].Chunk.Text != "Sulfuric acid is corrosive to steel." {
		t.Fatalf("hits = %+v", hits)
	}
}
