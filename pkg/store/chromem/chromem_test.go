package chromem

import (
	"context"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

func TestVectorStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewVectorStore(VectorStoreParams{})
	if err != nil {
		t.Fatal(err)
	}
	if res, err := s.Search(ctx, []float32{1, 0, 0}, 3); err != nil || len(res) != 0 {
		t.Fatalf("empty search = %v, %v", res, err)
	}

	err = s.Upsert(ctx, []common.IndexedChunk{
		{ChunkID: "a", RecordID: "r1", ContentHash: "ha", Text: "acid", Vector: []float32{1, 0, 0}},
		{ChunkID: "b", RecordID: "r1", ContentHash: "hb", Text: "steel", Vector: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Search(ctx, []float32{1, 0.1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].Chunk.ChunkID != "a" || res[0].Chunk.RecordID != "r1" {
		t.Fatalf("search = %+v", res)
	}

	hashes, _ := s.ContentHashes(ctx, []string{"a", "missing"})
	if !reflect.DeepEqual(hashes, map[string]string{"a": "ha"}) {
		t.Fatalf("hashes = %v", hashes)
	}

	// Re-adding an id replaces it.
	if err := s.Upsert(ctx, []common.IndexedChunk{{ChunkID: "a", RecordID: "r1", ContentHash: "h2", Text: "acid", Vector: []float32{1, 0, 0}}}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("count = %d", n)
	}
}
