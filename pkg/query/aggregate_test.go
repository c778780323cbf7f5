package query

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

func res(kind common.ResultKind, id string, score float64, keys ...common.IdentityKey) common.RetrievalResult {
	return common.RetrievalResult{
		Kind:       kind,
		Payload:    id,
		Score:      score,
		SourceRef:  common.SourceRef{Kind: kind, ID: id},
		EntityKeys: keys,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func refs(results []common.RetrievalResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.SourceRef.String()
	}
	return out
}

func TestAggregateOrdering(t *testing.T) {
	paths := []PathResult{
		{Kind: common.ResultSemantic, Results: []common.RetrievalResult{
			res(common.ResultSemantic, "c1", 0.3),
			res(common.ResultSemantic, "c1", 0.6),
			res(common.ResultSemantic, "c2", 0.5),
		}},
		{Kind: common.ResultGraph, Results: []common.RetrievalResult{
			res(common.ResultGraph, "e2", 0.5),
			res(common.ResultGraph, "e1", 0.5),
			res(common.ResultGraph, "e3", 0.1),
		}},
	}

	tests := []struct {
		name string
		max  int
		want []string
	}{
		{"all", 10, []string{"semantic:c1", "graph:e1", "graph:e2", "semantic:c2", "graph:e3"}},
		{"truncated", 2, []string{"semantic:c1", "graph:e1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate(paths, tt.max)
			if got := refs(agg.Results); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
			if agg.Results[0].Score != 0.6 {
				t.Fatalf("duplicate kept score %v, want max", agg.Results[0].Score)
			}
		})
	}
}

func TestAggregateConfidence(t *testing.T) {
	const key = common.IdentityKey("ChemicalSubstance:formula=H2SO4")

	tests := []struct {
		name     string
		paths    []PathResult
		want     float64
		degraded []string
	}{
		{
			name: "single path",
			paths: []PathResult{
				{Kind: common.ResultGraph, Results: []common.RetrievalResult{res(common.ResultGraph, "e1", 0.9, key)}},
			},
			want: 0.9 * 0.85,
		},
		{
			name: "both paths agree",
			paths: []PathResult{
				{Kind: common.ResultSemantic, Results: []common.RetrievalResult{res(common.ResultSemantic, "c1", 0.8, key)}},
				{Kind: common.ResultGraph, Results: []common.RetrievalResult{res(common.ResultGraph, "e1", 0.9, key)}},
			},
			want: 1 - 0.2*0.1,
		},
		{
			name: "both paths disagree",
			paths: []PathResult{
				{Kind: common.ResultSemantic, Results: []common.RetrievalResult{res(common.ResultSemantic, "c1", 0.8, "Hazard:type=toxic")}},
				{Kind: common.ResultGraph, Results: []common.RetrievalResult{res(common.ResultGraph, "e1", 0.9, key)}},
			},
			want: 0.85 * 0.85,
		},
		{
			name: "boost is capped",
			paths: []PathResult{
				{Kind: common.ResultSemantic, Results: []common.RetrievalResult{res(common.ResultSemantic, "c1", 1, key)}},
				{Kind: common.ResultGraph, Results: []common.RetrievalResult{res(common.ResultGraph, "e1", 1, key)}},
			},
			want: 0.99,
		},
		{
			name: "failed path degrades",
			paths: []PathResult{
				{Kind: common.ResultSemantic, Err: errors.New("down")},
				{Kind: common.ResultGraph, Results: []common.RetrievalResult{res(common.ResultGraph, "e1", 0.9, key)}},
			},
			want:     0.9 * 0.85 * 0.8,
			degraded: []string{"semantic"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate(tt.paths, 10)
			if !approx(agg.Confidence, tt.want) {
				t.Fatalf("confidence = %v, want %v", agg.Confidence, tt.want)
			}
			if !reflect.DeepEqual(agg.Degraded, tt.degraded) {
				t.Fatalf("degraded = %v, want %v", agg.Degraded, tt.degraded)
			}
		})
	}
}

func TestAggregateBoostBeatsEitherPath(t *testing.T) {
	const key = common.IdentityKey("Container:material=steel")
	sem := PathResult{Kind: common.ResultSemantic, Results: []common.RetrievalResult{res(common.ResultSemantic, "c1", 0.7, key)}}
	graph := PathResult{Kind: common.ResultGraph, Results: []common.RetrievalResult{res(common.ResultGraph, "e1", 0.6, key)}}

	both := Aggregate([]PathResult{sem, graph}, 10).Confidence
	for _, single := range []PathResult{sem, graph} {
		if c := Aggregate([]PathResult{single}, 10).Confidence; both <= c {
			t.Fatalf("combined %v not above single path %v", both, c)
		}
	}
}

func TestAggregateNoResults(t *testing.T) {
	agg := Aggregate([]PathResult{{Kind: common.ResultGraph}, {Kind: common.ResultSemantic, Err: errors.New("timeout")}}, 5)
	if !agg.NoResults || agg.Confidence != 0 {
		t.Fatalf("agg = %+v", agg)
	}
	if agg.Results == nil || len(agg.Results) != 0 {
		t.Fatalf("results = %#v, want empty slice", agg.Results)
	}
}
