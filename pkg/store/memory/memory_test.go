package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
)

func node(key, typ, name string) common.GraphNode {
	return common.GraphNode{
		Key:        common.IdentityKey(key),
		Type:       typ,
		Attributes: map[string]common.Value{"name": common.StringValue(name)},
		Confidence: 0.9,
	}
}

func TestGraphCommitVersions(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()
	acid := node("ChemicalSubstance:formula=H2SO4", "ChemicalSubstance", "sulfuric acid")
	corr := node("Hazard:name=corrosive", "Hazard", "corrosive")
	edge := common.GraphEdge{SourceKey: acid.Key, TargetKey: corr.Key, Type: "HAS_HAZARD", Confidence: 0.8}

	if err := s.Commit(ctx, store.GraphBatch{RecordID: "r1", Nodes: []common.GraphNode{acid, corr}, Edges: []common.GraphEdge{edge}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, _ := s.Nodes(ctx, []common.IdentityKey{acid.Key, "missing"})
	if len(got) != 1 || got[acid.Key].Version != 1 {
		t.Fatalf("Nodes = %+v", got)
	}

	// A writer that read version 0 lost the race.
	err := s.Commit(ctx, store.GraphBatch{RecordID: "r2", Nodes: []common.GraphNode{acid}})
	if !errors.Is(err, store.ErrUpsertConflict) {
		t.Fatalf("stale commit err = %v", err)
	}

	fresh := got[acid.Key]
	fresh.Confidence = 0.95
	if err := s.Commit(ctx, store.GraphBatch{RecordID: "r2", Nodes: []common.GraphNode{fresh}}); err != nil {
		t.Fatalf("fresh commit: %v", err)
	}
	got, _ = s.Nodes(ctx, []common.IdentityKey{acid.Key})
	if got[acid.Key].Version != 2 || got[acid.Key].Confidence != 0.95 {
		t.Fatalf("after update: %+v", got[acid.Key])
	}

	nodes, edges, _ := s.Counts(ctx)
	if nodes != 2 || edges != 1 {
		t.Fatalf("Counts = %d, %d", nodes, edges)
	}
}

func TestGraphCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()
	a := node("Material:name=steel", "Material", "steel")
	if err := s.Commit(ctx, store.GraphBatch{Nodes: []common.GraphNode{a}}); err != nil {
		t.Fatal(err)
	}
	b := node("Material:name=glass", "Material", "glass")
	// a is stale, so b must not be written either.
	if err := s.Commit(ctx, store.GraphBatch{Nodes: []common.GraphNode{b, a}}); !errors.Is(err, store.ErrUpsertConflict) {
		t.Fatalf("err = %v", err)
	}
	if n, _, _ := s.Counts(ctx); n != 1 {
		t.Fatalf("nodes = %d, want 1", n)
	}
}

func TestGraphCommitRejectsDanglingEdge(t *testing.T) {
	s := NewGraphStore()
	e := common.GraphEdge{SourceKey: "A:name=a", TargetKey: "B:name=b", Type: "X"}
	if err := s.Commit(context.Background(), store.GraphBatch{Edges: []common.GraphEdge{e}}); err == nil {
		t.Fatal("expected error for dangling edge")
	}
}

func TestGraphQuery(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore()
	acid := node("ChemicalSubstance:formula=H2SO4", "ChemicalSubstance", "sulfuric acid")
	steel := node("Material:name=steel", "Material", "steel")
	glass := node("Material:name=glass", "Material", "glass")
	lone := node("Hazard:name=flammable", "Hazard", "flammable")
	batch := store.GraphBatch{
		Nodes: []common.GraphNode{acid, steel, glass, lone},
		Edges: []common.GraphEdge{
			{SourceKey: acid.Key, TargetKey: steel.Key, Type: "INCOMPATIBLE_WITH", Confidence: 0.7},
			{SourceKey: acid.Key, TargetKey: glass.Key, Type: "COMPATIBLE_WITH", Confidence: 0.9},
		},
	}
	if err := s.Commit(ctx, batch); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		query store.GraphQuery
		want  []string
	}{
		{"term matches both edges", store.GraphQuery{Terms: []string{"Sulfuric Acid"}}, []string{"COMPATIBLE_WITH", "INCOMPATIBLE_WITH"}},
		{"two matched endpoints rank first", store.GraphQuery{Terms: []string{"sulfuric acid", "steel"}}, []string{"INCOMPATIBLE_WITH", "COMPATIBLE_WITH"}},
		{"rel type filter", store.GraphQuery{Terms: []string{"sulfuric acid"}, RelTypes: []string{"INCOMPATIBLE_WITH"}}, []string{"INCOMPATIBLE_WITH"}},
		{"lone node", store.GraphQuery{Keys: []common.IdentityKey{lone.Key}}, []string{"node"}},
		{"partial word does not match", store.GraphQuery{Terms: []string{"sulf"}}, nil},
		{"limit", store.GraphQuery{Terms: []string{"sulfuric acid"}, Limit: 1}, []string{"COMPATIBLE_WITH"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := s.Query(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, f := range facts {
				if f.Edge == nil {
					got = append(got, "node")
					continue
				}
				got = append(got, f.Edge.Type)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorSearch(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore()
	err := s.Upsert(ctx, []common.IndexedChunk{
		{ChunkID: "a", RecordID: "r", Vector: []float32{1, 0}, ContentHash: "ha"},
		{ChunkID: "b", RecordID: "r", Vector: []float32{0.6, 0.8}, ContentHash: "hb"},
		{ChunkID: "c", RecordID: "r", Vector: []float32{-1, 0}, ContentHash: "hc"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := s.Search(ctx, []float32{1, 0}, 5)
	var ids []string
	for _, r := range res {
		ids = append(ids, r.Chunk.ChunkID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Fatalf("ids = %v", ids)
	}

	hashes, _ := s.ContentHashes(ctx, []string{"a", "zzz"})
	if !reflect.DeepEqual(hashes, map[string]string{"a": "ha"}) {
		t.Fatalf("hashes = %v", hashes)
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Fatalf("count = %d", n)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore()
	now := time.Now()
	s.SaveOutcome(ctx, common.IngestionOutcome{RecordID: "old", FinishedAt: now.Add(-time.Minute)})
	s.SaveOutcome(ctx, common.IngestionOutcome{RecordID: "new", FinishedAt: now})

	if _, err := s.Outcome(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	list, _ := s.ListOutcomes(ctx, 0)
	if len(list) != 2 || list[0].RecordID != "new" {
		t.Fatalf("list = %+v", list)
	}

	s.EnqueueReview(ctx, common.ReviewItem{RecordID: "1"})
	s.EnqueueReview(ctx, common.ReviewItem{RecordID: "2"})
	items, _ := s.ListReview(ctx, 1)
	if len(items) != 1 || items[0].RecordID != "2" {
		t.Fatalf("review = %+v", items)
	}
}
