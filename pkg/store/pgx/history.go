package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

type HistoryStore struct {
	conn pgxIConn
}

func NewHistoryStore(conn pgxIConn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

func (s *HistoryStore) SaveOutcome(ctx context.Context, outcome common.IngestionOutcome) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO ingestion_outcomes (record_id, finished_at, data) VALUES ($1, $2, $3)
		ON CONFLICT (record_id) DO UPDATE SET finished_at = EXCLUDED.finished_at, data = EXCLUDED.data`,
		outcome.RecordID, outcome.FinishedAt, outcome,
	)
	if err != nil {
		return fmt.Errorf("save outcome %s: %w", outcome.RecordID, err)
	}
	return nil
}

func (s *HistoryStore) Outcome(ctx context.Context, recordID string) (common.IngestionOutcome, error) {
	var o common.IngestionOutcome
	err := s.conn.QueryRow(ctx, `SELECT data FROM ingestion_outcomes WHERE record_id = $1`, recordID).Scan(&o)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return o, fmt.Errorf("outcome %s: %w", recordID, store.ErrNotFound)
	}
	if err != nil {
		return o, fmt.Errorf("load outcome %s: %w", recordID, err)
	}
	return o, nil
}

func (s *HistoryStore) ListOutcomes(ctx context.Context, limit int) ([]common.IngestionOutcome, error) {
	return listJSON[common.IngestionOutcome](ctx, s.conn,
		`SELECT data FROM ingestion_outcomes ORDER BY finished_at DESC, record_id`, limit)
}

func (s *HistoryStore) SaveQuery(ctx context.Context, rec common.QueryRecord) error {
	if _, err := s.conn.Exec(ctx, `INSERT INTO query_history (data) VALUES ($1)`, rec); err != nil {
		return fmt.Errorf("save query: %w", err)
	}
	return nil
}

func (s *HistoryStore) ListQueries(ctx context.Context, limit int) ([]common.QueryRecord, error) {
	return listJSON[common.QueryRecord](ctx, s.conn, `SELECT data FROM query_history ORDER BY id DESC`, limit)
}

func (s *HistoryStore) EnqueueReview(ctx context.Context, item common.ReviewItem) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO review_queue (record_id, queued_at, data) VALUES ($1, $2, $3)`,
		item.RecordID, item.QueuedAt, item,
	)
	if err != nil {
		return fmt.Errorf("enqueue review: %w", err)
	}
	return nil
}

func (s *HistoryStore) ListReview(ctx context.Context, limit int) ([]common.ReviewItem, error) {
	return listJSON[common.ReviewItem](ctx, s.conn, `SELECT data FROM review_queue ORDER BY id DESC`, limit)
}

// listJSON decodes the single jsonb column of each row. A limit <= 0
// returns every row.
func listJSON[T any](ctx context.Context, conn pgxIConn, sql string, limit int) ([]T, error) {
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
