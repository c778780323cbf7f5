package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const chunkInsertBatchSize = 500

type VectorStore struct {
	conn pgxIConn
}

func NewVectorStore(conn pgxIConn) *VectorStore {
	return &VectorStore{conn: conn}
}

func (s *VectorStore) Upsert(ctx context.Context, chunks []common.IndexedChunk) error {
	return store.ChunkRange(len(chunks), chunkInsertBatchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, c := range chunks[start:end] {
			batch.Queue(`INSERT INTO chunks (chunk_id, record_id, content_hash, text, embedding)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (chunk_id) DO UPDATE SET content_hash = EXCLUDED.content_hash,
					text = EXCLUDED.text, embedding = EXCLUDED.embedding`,
				c.ChunkID, c.RecordID, c.ContentHash, util.SanitizePostgresText(c.Text), pgvector.NewVector(c.Vector),
			)
		}
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert chunk batch: %w", err)
		}
		return tx.Commit(ctx)
	})
}

func (s *VectorStore) ContentHashes(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	rows, err := s.conn.Query(ctx, `SELECT chunk_id, content_hash FROM chunks WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("query content hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, limit int) ([]store.ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.Query(ctx,
		`SELECT chunk_id, record_id, content_hash, text, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE vector_dims(embedding) = vector_dims($1)
		ORDER BY embedding <=> $1, chunk_id
		LIMIT $2`,
		pgvector.NewVector(vector), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredChunk
	for rows.Next() {
		var sc store.ScoredChunk
		if err := rows.Scan(&sc.Chunk.ChunkID, &sc.Chunk.RecordID, &sc.Chunk.ContentHash, &sc.Chunk.Text, &sc.Score); err != nil {
			return nil, err
		}
		if sc.Score <= 0 {
			continue
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *VectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
