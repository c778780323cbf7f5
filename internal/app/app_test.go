package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "neo4j")
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("CHUNK_MAX_TOKENS", "120")
	t.Setenv("PARALLEL_RECORDS", "2")
	t.Setenv("QUERY_PATH_TIMEOUT_MS", "750")
	t.Setenv("QUERY_DEADLINE_MS", "")

	c := ConfigFromEnv()
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"graph backend", c.GraphBackend, "neo4j"},
		{"vector backend default", c.VectorBackend, "memory"},
		{"lock backend default", c.LockBackend, "local"},
		{"chunk tokens", c.ChunkMaxTokens, 120},
		{"parallel records", c.ParallelRecords, 2},
		{"path timeout", c.QueryPathTimeout, 750 * time.Millisecond},
		{"deadline default", c.QueryDeadline, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	tests := []Config{
		{GraphBackend: "sqlite"},
		{VectorBackend: "faiss"},
		{LockBackend: "zookeeper"},
		{AIAdapter: "mystery"},
		{GraphBackend: "pgx"},
	}
	for _, cfg := range tests {
		if _, err := New(context.Background(), cfg); err == nil {
			t.Fatalf("New(%+v) succeeded", cfg)
		}
	}
}

func TestInMemoryApp(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	outcomes, err := a.Pipeline.Ingest(ctx, loader.RawInput{
		Name: "sds.txt",
		Data: []byte("Sulfuric acid (H2SO4) is corrosive. It may be stored in steel containers."),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != common.StatusComplete {
		t.Fatalf("outcomes = %+v", outcomes)
	}

	stats, err := a.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Nodes != 3 || stats.Edges != 2 || stats.Chunks != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	answer, err := a.Engine.Query(ctx, common.QueryRequest{Question: "Is H2SO4 compatible with steel?", IncludeSources: true})
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoResults || len(answer.Sources) == 0 {
		t.Fatalf("answer = %+v", answer)
	}
}

func TestCatalogPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	def := `version: 7
entities:
  - name: Widget
    keys: [serial]
    attributes: [serial]
`
	if err := os.WriteFile(path, []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := New(context.Background(), Config{CatalogPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if !a.Catalog.HasType("Widget") || a.Catalog.HasType("ChemicalSubstance") {
		t.Fatalf("catalog not replaced: %+v", a.Catalog.Definition())
	}
	if a.Catalog.Version() != 7 {
		t.Fatalf("version = %d", a.Catalog.Version())
	}
}
