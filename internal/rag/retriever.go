package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/embeddings"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/observability"
	"github.com/perspectives-ai/rag/internal/vectorstore"
)

const (
	DefaultSimilarityFloor = 0.3
	DefaultTopK            = 5
	DefaultStageTimeout    = 60 * time.Second
)

// QueryEmbedder embeds query text. *embeddings.Service satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string, task llm.TaskType) (*embeddings.Batch, error)
}

// Retriever handles RAG retrieval using vector similarity search
type Retriever struct {
	embedder QueryEmbedder
	index    vectorstore.Index
	floor    float64
	logger   *slog.Logger
}

// NewRetriever creates a new RAG retriever. floor is the minimum
// similarity a result needs. Embedding time limits belong to the embedder,
// which bounds each tier separately so a slow tier cannot starve the next.
func NewRetriever(embedder QueryEmbedder, index vectorstore.Index, floor float64, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		floor:    floor,
		logger:   logger,
	}
}

// Retrieve finds up to maxResults chunks similar to query, best first.
// An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, maxResults int) ([]domain.RetrievalResult, error) {
	ctx, span := observability.StartStageSpan(ctx, "retrieve")
	defer span.End()

	batch, err := r.embedder.Embed(ctx, []string{query}, llm.TaskQuery)
	if err != nil {
		observability.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrRetrievalUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to embed query: %w", domain.ErrRetrievalUnavailable, err)
	}
	if len(batch.Vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", domain.ErrRetrievalUnavailable, len(batch.Vectors))
	}

	results, err := r.index.Search(ctx, vectorstore.Query{
		Vector: batch.Vectors[0],
		Space:  batch.Space,
		TopK:   maxResults,
		Floor:  r.floor,
	})
	if err != nil {
		observability.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: failed to search chunks: %w", domain.ErrRetrievalUnavailable, err)
	}

	top := 0.0
	if len(results) > 0 {
		top = results[0].Similarity
	}
	observability.RecordRetrieval(span, batch.Space.String(), len(results), top)
	r.logger.Debug("retrieved chunks",
		"space", batch.Space.String(), "tier", batch.Tier, "results", len(results), "top_score", top)
	return results, nil
}
