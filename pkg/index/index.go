// Package index embeds chunks and writes them to a vector store, skipping
// chunks whose content is already indexed.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var ErrIndexingFailure = errors.New("indexing failure")

// EmbeddingProvider turns texts into vectors, one per input in order.
// ai.GraphAIClient and local.HashEmbedder satisfy it.
type EmbeddingProvider interface {
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

type Indexer struct {
	provider  EmbeddingProvider
	store     store.VectorStore
	batchSize int
	parallel  int
	limiter   *rate.Limiter
}

type NewIndexerParams struct {
	Provider EmbeddingProvider
	Store    store.VectorStore
	// BatchSize is the number of chunks per embedding call.
	BatchSize int
	// Parallel bounds concurrent embedding calls.
	Parallel int
	// RequestsPerSecond throttles embedding calls; zero disables it.
	RequestsPerSecond float64
}

func NewIndexer(params NewIndexerParams) *Indexer {
	batch := params.BatchSize
	if batch <= 0 {
		batch = 32
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if params.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), parallel)
	}
	return &Indexer{
		provider:  params.Provider,
		store:     params.Store,
		batchSize: batch,
		parallel:  parallel,
		limiter:   limiter,
	}
}

type Result struct {
	Indexed int
	Skipped int
}

// Index embeds and upserts chunks by id. Chunks whose stored content hash
// equals the hash of their text are skipped. Any failure is reported as
// ErrIndexingFailure; nothing is written for a failed call.
func (ix *Indexer) Index(ctx context.Context, chunks []common.Chunk) (Result, error) {
	if len(chunks) == 0 {
		return Result{}, nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	stored, err := ix.store.ContentHashes(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read content hashes: %v", ErrIndexingFailure, err)
	}

	var todo []common.IndexedChunk
	seen := make(map[string]bool, len(chunks))
	res := Result{}
	for _, c := range chunks {
		hash := ContentHash(c.Text)
		if stored[c.ID] == hash || seen[c.ID] {
			res.Skipped++
			continue
		}
		seen[c.ID] = true
		todo = append(todo, common.IndexedChunk{
			ChunkID:     c.ID,
			RecordID:    c.RecordID,
			ContentHash: hash,
			Text:        c.Text,
		})
	}
	if len(todo) == 0 {
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parallel)
	err = store.ChunkRange(len(todo), ix.batchSize, func(start, end int) error {
		batch := todo[start:end]
		g.Go(func() error {
			return ix.embed(gctx, batch)
		})
		return nil
	})
	if err == nil {
		err = g.Wait()
	}
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrIndexingFailure, err)
	}

	if err := ix.store.Upsert(ctx, todo); err != nil {
		return res, fmt.Errorf("%w: upsert: %v", ErrIndexingFailure, err)
	}
	res.Indexed = len(todo)
	logger.Debug("[Index] Chunks indexed", "indexed", res.Indexed, "skipped", res.Skipped)
	return res, nil
}

// embed fills the vectors of batch in place.
func (ix *Indexer) embed(ctx context.Context, batch []common.IndexedChunk) error {
	if err := ix.limiter.Wait(ctx); err != nil {
		return err
	}
	inputs := make([][]byte, len(batch))
	for i, c := range batch {
		inputs[i] = []byte(c.Text)
	}
	vecs, err := ix.provider.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(batch), err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vecs), len(batch))
	}
	for i := range batch {
		if len(vecs[i]) == 0 {
			return fmt.Errorf("empty embedding for chunk %s", batch[i].ChunkID)
		}
		batch[i].Vector = vecs[i]
	}
	return nil
}

// ContentHash is the hash stored with every indexed chunk.
func ContentHash(text string) string {
	return common.Hash(text)
}

// EmbedQuery embeds a single query text with the same provider.
func (ix *Indexer) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := ix.provider.GenerateEmbeddings(ctx, [][]byte{[]byte(text)})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding provider returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}
