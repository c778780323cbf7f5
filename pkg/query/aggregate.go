package query

import (
	"slices"
	"sort"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

const (
	DefaultMaxResults = 10

	singlePathFactor = 0.85
	degradedFactor   = 0.8
	maxConfidence    = 0.99
)

// PathResult is what one retrieval path returned. Err is set when the path
// timed out or failed; Results may still be empty then.
type PathResult struct {
	Kind    common.ResultKind
	Results []common.RetrievalResult
	Err     error
}

type Aggregation struct {
	Results    []common.RetrievalResult
	Confidence float64
	// Degraded names the paths that failed.
	Degraded  []string
	NoResults bool
}

// Aggregate merges path results into one ranked list. Duplicate sources keep
// their best score; ordering is by score, then by source ref.
func Aggregate(paths []PathResult, maxResults int) Aggregation {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	agg := Aggregation{Results: []common.RetrievalResult{}}
	seen := make(map[string]int)
	var merged []common.RetrievalResult
	for _, p := range paths {
		if p.Err != nil {
			agg.Degraded = append(agg.Degraded, string(p.Kind))
		}
		for _, r := range p.Results {
			ref := r.SourceRef.String()
			if i, ok := seen[ref]; ok {
				if r.Score > merged[i].Score {
					merged[i] = r
				}
				continue
			}
			seen[ref] = len(merged)
			merged = append(merged, r)
		}
	}
	sort.Strings(agg.Degraded)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].SourceRef.String() < merged[j].SourceRef.String()
	})
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	if len(merged) == 0 {
		agg.NoResults = true
		return agg
	}

	agg.Results = merged
	agg.Confidence = confidence(merged)
	if len(agg.Degraded) > 0 {
		agg.Confidence *= degradedFactor
	}
	return agg
}

// confidence scores the kept results. Both paths pointing at a common
// entity combine as independent evidence; anything else is the mean score
// discounted for relying on a single view.
func confidence(results []common.RetrievalResult) float64 {
	var sem, graph []float64
	var all []float64
	for _, r := range results {
		s := clamp01(r.Score)
		all = append(all, s)
		switch r.Kind {
		case common.ResultSemantic:
			sem = append(sem, s)
		case common.ResultGraph:
			graph = append(graph, s)
		}
	}

	if len(sem) > 0 && len(graph) > 0 && pathsAgree(results) {
		c := 1 - (1-mean(sem))*(1-mean(graph))
		return min(c, maxConfidence)
	}
	return mean(all) * singlePathFactor
}

func pathsAgree(results []common.RetrievalResult) bool {
	graphKeys := make(map[common.IdentityKey]struct{})
	for _, r := range results {
		if r.Kind != common.ResultGraph {
			continue
		}
		for _, k := range r.EntityKeys {
			graphKeys[k] = struct{}{}
		}
	}
	for _, r := range results {
		if r.Kind != common.ResultSemantic {
			continue
		}
		if slices.ContainsFunc(r.EntityKeys, func(k common.IdentityKey) bool {
			_, ok := graphKeys[k]
			return ok
		}) {
			return true
		}
	}
	return false
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}
