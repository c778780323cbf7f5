package query

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/ai/local"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/index"
	"github.com/OFFIS-RIT/hazgraph/pkg/schema"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
	"github.com/OFFIS-RIT/hazgraph/pkg/store/memory"

	"github.com/sony/gobreaker"
)

const acidKey = common.IdentityKey("ChemicalSubstance:formula=H2SO4")

type fixture struct {
	graph   *memory.GraphStore
	vectors *memory.VectorStore
	history *memory.HistoryStore
	indexer *index.Indexer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		graph:   memory.NewGraphStore(),
		vectors: memory.NewVectorStore(),
		history: memory.NewHistoryStore(),
	}
	f.indexer = index.NewIndexer(index.NewIndexerParams{Provider: local.NewHashEmbedder(0), Store: f.vectors})

	acid := common.GraphNode{
		Key:  acidKey,
		Type: "ChemicalSubstance",
		Attributes: map[string]common.Value{
			"formula": common.StringValue("H2SO4"),
			"name":    common.StringValue("sulfuric acid"),
		},
		Confidence: 0.95,
		Provenance: []string{"rec-1@0"},
	}
	steel := common.GraphNode{
		Key:        "Container:material=steel",
		Type:       "Container",
		Attributes: map[string]common.Value{"material": common.EnumValue("steel")},
		Confidence: 0.9,
		Provenance: []string{"rec-1@0"},
	}
	edge := common.GraphEdge{
		SourceKey:  acid.Key,
		TargetKey:  steel.Key,
		Type:       "IS_COMPATIBLE_WITH",
		Confidence: 0.9,
		Provenance: []string{"rec-1@0"},
	}
	if err := f.graph.Commit(ctx, store.GraphBatch{RecordID: "rec-1", Nodes: []common.GraphNode{acid, steel}, Edges: []common.GraphEdge{edge}}); err != nil {
		t.Fatalf("seed graph: %v", err)
	}

	text := "Sulfuric acid (H2SO4) is corrosive; sulfuric acid containers made of steel are suitable."
	chunks := []common.Chunk{{ID: common.ChunkID("rec-1", 0, text), RecordID: "rec-1", Sequence: 0, Text: text}}
	if _, err := f.indexer.Index(ctx, chunks); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	return f
}

func (f fixture) engine(graph store.GraphStore, opts ...EngineOption) *Engine {
	if graph == nil {
		graph = f.graph
	}
	return NewEngine(NewEngineParams{
		Catalog:     schema.DefaultCatalog(),
		Graph:       graph,
		Vectors:     f.vectors,
		Embedder:    f.indexer,
		History:     f.history,
		PathTimeout: 100 * time.Millisecond,
		Deadline:    time.Second,
	}, opts...)
}

func kinds(sources []common.SourceRef) map[common.ResultKind]int {
	out := make(map[common.ResultKind]int)
	for _, s := range sources {
		out[s.Kind]++
	}
	return out
}

func TestQueryHybridReturnsBothSources(t *testing.T) {
	f := newFixture(t)
	e := f.engine(nil)

	answer, trace, err := e.QueryWithTrace(context.Background(), common.QueryRequest{
		Question:       "What containers are suitable for sulfuric acid?",
		IncludeSources: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoResults || len(answer.Degraded) != 0 {
		t.Fatalf("answer = %+v", answer)
	}
	k := kinds(answer.Sources)
	if k[common.ResultGraph] != 1 || k[common.ResultSemantic] != 1 {
		t.Fatalf("sources = %+v", answer.Sources)
	}
	// 0.9 edge confidence with one matched endpoint scores 0.675; agreement
	// with the passage must lift the answer above it.
	if answer.Confidence <= 0.675 || answer.Confidence > 0.99 {
		t.Fatalf("confidence = %v", answer.Confidence)
	}
	if !strings.Contains(answer.Text, "sulfuric acid (H2SO4) IS_COMPATIBLE_WITH steel container") {
		t.Fatalf("text = %q", answer.Text)
	}

	if len(trace.Paths) != 2 || trace.Paths[0].Path != "graph" || trace.Paths[1].Path != "semantic" {
		t.Fatalf("trace paths = %+v", trace.Paths)
	}
	if len(trace.EntityKeys) != 1 || trace.EntityKeys[0] != string(acidKey) {
		t.Fatalf("trace keys = %v", trace.EntityKeys)
	}
	if len(trace.UsedSources) != 2 {
		t.Fatalf("used = %v", trace.UsedSources)
	}

	recs, err := f.history.ListQueries(context.Background(), 10)
	if err != nil || len(recs) != 1 || recs[0].Answer.ID != answer.ID {
		t.Fatalf("history = %+v, %v", recs, err)
	}
}

type slowGraph struct {
	store.GraphStore
	delay time.Duration
}

func (s slowGraph) Query(ctx context.Context, q store.GraphQuery) ([]store.GraphFact, error) {
	// Ignores ctx on purpose; the engine must not wait for it.
	time.Sleep(s.delay)
	return s.GraphStore.Query(context.Background(), q)
}

func TestQueryDegradesOnGraphTimeout(t *testing.T) {
	f := newFixture(t)
	e := f.engine(slowGraph{GraphStore: f.graph, delay: 500 * time.Millisecond})

	start := time.Now()
	answer, trace, err := e.QueryWithTrace(context.Background(), common.QueryRequest{
		Question:       "What containers are suitable for sulfuric acid?",
		IncludeSources: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("query waited %v for the slow path", elapsed)
	}
	if len(answer.Degraded) != 1 || answer.Degraded[0] != "graph" {
		t.Fatalf("degraded = %v", answer.Degraded)
	}
	if answer.NoResults {
		t.Fatal("semantic results should still answer")
	}
	k := kinds(answer.Sources)
	if k[common.ResultGraph] != 0 || k[common.ResultSemantic] != 1 {
		t.Fatalf("sources = %+v", answer.Sources)
	}
	if !strings.Contains(trace.Paths[0].Error, ErrRetrievalTimeout.Error()) {
		t.Fatalf("graph path error = %q", trace.Paths[0].Error)
	}
}

func TestQueryNoResults(t *testing.T) {
	e := NewEngine(NewEngineParams{
		Catalog: schema.DefaultCatalog(),
		Graph:   memory.NewGraphStore(),
		Vectors: memory.NewVectorStore(),
		Embedder: index.NewIndexer(index.NewIndexerParams{
			Provider: local.NewHashEmbedder(0),
			Store:    memory.NewVectorStore(),
		}),
		Renderer: &spyRenderer{text: "invented"},
	})

	answer, err := e.Query(context.Background(), common.QueryRequest{Question: "Is H2SO4 compatible with steel?", IncludeSources: true})
	if err != nil {
		t.Fatal(err)
	}
	if !answer.NoResults || answer.Confidence != 0 || answer.Sources == nil || len(answer.Sources) != 0 {
		t.Fatalf("answer = %+v", answer)
	}
	if answer.Text != "" {
		t.Fatalf("text = %q, want empty", answer.Text)
	}
}

type failingGraph struct {
	store.GraphStore
	calls *atomic.Int32
}

func (f failingGraph) Query(context.Context, store.GraphQuery) ([]store.GraphFact, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestQueryBreakerOpens(t *testing.T) {
	f := newFixture(t)
	calls := &atomic.Int32{}
	e := f.engine(failingGraph{GraphStore: f.graph, calls: calls}, WithBreakerSettings(gobreaker.Settings{
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	}))

	req := common.QueryRequest{Question: "Is H2SO4 compatible with steel?"}
	for i := 0; i < 3; i++ {
		answer, err := e.Query(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if len(answer.Degraded) != 1 || answer.Degraded[0] != "graph" {
			t.Fatalf("attempt %d degraded = %v", i, answer.Degraded)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("store called %d times, breaker should have opened", n)
	}
}

func TestQueryEmptyQuestion(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine(nil).Query(context.Background(), common.QueryRequest{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("err = %v", err)
	}
}
