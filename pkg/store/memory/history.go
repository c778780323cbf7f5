package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
)

type HistoryStore struct {
	mu       sync.RWMutex
	outcomes map[string]common.IngestionOutcome
	queries  []common.QueryRecord
	review   []common.ReviewItem
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{outcomes: make(map[string]common.IngestionOutcome)}
}

func (s *HistoryStore) SaveOutcome(ctx context.Context, outcome common.IngestionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome.Violations = append([]string(nil), outcome.Violations...)
	s.outcomes[outcome.RecordID] = outcome
	return nil
}

func (s *HistoryStore) Outcome(ctx context.Context, recordID string) (common.IngestionOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[recordID]
	if !ok {
		return common.IngestionOutcome{}, fmt.Errorf("outcome %s: %w", recordID, store.ErrNotFound)
	}
	return o, nil
}

// ListOutcomes returns the most recently finished outcomes first.
func (s *HistoryStore) ListOutcomes(ctx context.Context, limit int) ([]common.IngestionOutcome, error) {
	s.mu.RLock()
	out := make([]common.IngestionOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		out = append(out, o)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].RecordID < out[j].RecordID
	})
	return newest(out, limit), nil
}

func (s *HistoryStore) SaveQuery(ctx context.Context, rec common.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, rec)
	return nil
}

func (s *HistoryStore) ListQueries(ctx context.Context, limit int) ([]common.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newest(reversed(s.queries), limit), nil
}

func (s *HistoryStore) EnqueueReview(ctx context.Context, item common.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.review = append(s.review, item)
	return nil
}

func (s *HistoryStore) ListReview(ctx context.Context, limit int) ([]common.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newest(reversed(s.review), limit), nil
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func newest[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
