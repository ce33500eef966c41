// Package rag answers questions from the document collection: it retrieves
// similar chunks and synthesizes a cited answer from them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/perspectives-ai/rag/internal/domain"
)

const (
	DefaultMaxResultsLimit = 20

	// UnavailableAnswer is returned when the document search cannot run
	UnavailableAnswer = "I encountered an error while searching the documents. Please try again or rephrase your question."
)

// Pipeline runs retrieval then synthesis for one query
type Pipeline struct {
	retriever       *Retriever
	synthesizer     *Synthesizer
	maxResultsLimit int
	logger          *slog.Logger
}

// NewPipeline creates a query pipeline. maxResultsLimit caps how many
// results a caller may request.
func NewPipeline(retriever *Retriever, synthesizer *Synthesizer, maxResultsLimit int, logger *slog.Logger) *Pipeline {
	if maxResultsLimit <= 0 {
		maxResultsLimit = DefaultMaxResultsLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retriever:       retriever,
		synthesizer:     synthesizer,
		maxResultsLimit: maxResultsLimit,
		logger:          logger,
	}
}

// Synthesizer returns the pipeline's synthesizer
func (p *Pipeline) Synthesizer() *Synthesizer {
	return p.synthesizer
}

// Ask answers q. Invalid input returns domain.ErrInvalidQuery; a search
// outage yields an apology answer rather than an error.
func (p *Pipeline) Ask(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", domain.ErrInvalidQuery)
	}
	if q.MaxResults <= 0 {
		return nil, fmt.Errorf("%w: max_results must be positive, got %d", domain.ErrInvalidQuery, q.MaxResults)
	}
	maxResults := min(q.MaxResults, p.maxResultsLimit)

	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := p.retriever.Retrieve(ctx, text, maxResults)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrRetrievalUnavailable) {
			p.logger.Error("retrieval unavailable", "error", err)
			return &domain.Answer{Text: UnavailableAnswer, Sources: []domain.RetrievalResult{}}, nil
		}
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer, err := p.synthesizer.Synthesize(ctx, text, results)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("query answered",
		"results", len(answer.Sources), "confidence", answer.Confidence, "duration", time.Since(start))
	return answer, nil
}
