package identity

import (
	"context"
	"sync"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
)

// ReviewQueue parks entities whose identity could not be computed so a
// person can resolve them. The history stores implement it.
type ReviewQueue interface {
	EnqueueReview(ctx context.Context, item common.ReviewItem) error
	ListReview(ctx context.Context, limit int) ([]common.ReviewItem, error)
}

// MemoryReviewQueue keeps review items in process memory.
type MemoryReviewQueue struct {
	mu    sync.Mutex
	items []common.ReviewItem
}

func NewMemoryReviewQueue() *MemoryReviewQueue {
	return &MemoryReviewQueue{}
}

func (q *MemoryReviewQueue) EnqueueReview(_ context.Context, item common.ReviewItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

// ListReview returns the newest items first. A limit <= 0 returns all.
func (q *MemoryReviewQueue) ListReview(_ context.Context, limit int) ([]common.ReviewItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]common.ReviewItem, 0, n)
	for i := len(q.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, q.items[i])
	}
	return out, nil
}
