// Package retriever turns a question into the most similar indexed passages.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"echodoc/internal/domain"
)

// DefaultK keeps the assembled context small enough for the model input.
const DefaultK = 4

// Retriever embeds queries and searches an index. It is safe for concurrent use.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	defaultK int
	logger   *slog.Logger
}

// New creates a Retriever. A non-positive defaultK selects DefaultK.
func New(embedder domain.Embedder, index domain.VectorIndex, defaultK int, logger *slog.Logger) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, defaultK: defaultK, logger: logger}
}

// DefaultK returns the k used when callers pass zero.
func (r *Retriever) DefaultK() int { return r.defaultK }

// Retrieve returns up to k passages ordered by descending similarity. A zero
// k selects the default. An empty index yields no results and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if k == 0 {
		k = r.defaultK
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", domain.ErrInvalidConfig, k)
	}

	n, err := r.index.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("retriever: index size: %w", err)
	}
	if n == 0 {
		r.logger.Debug("retrieve on empty index")
		return nil, nil
	}

	vectors, err := r.embedder.EmbedBatch(ctx, []string{query}, domain.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("retriever: embed query: got %d vectors, want 1", len(vectors))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := r.index.Search(ctx, vectors[0], k)
	if errors.Is(err, domain.ErrEmptyIndex) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retriever: search: %w", err)
	}
	r.logger.Debug("retrieved passages", "k", k, "results", len(results))
	return results, nil
}
