// Package embeddings turns text into vectors through an ordered list of provider tiers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/observability"
)

const (
	DefaultBatchSize     = 10
	DefaultMaxInputChars = 8000
)

// Batch is the result of one Embed call. Every vector belongs to Space.
type Batch struct {
	Vectors [][]float32
	Space   domain.VectorSpace
	Tier    string
}

// Options tunes request shaping
type Options struct {
	BatchSize     int
	MaxInputChars int
	// CallTimeout bounds each request to a tier, retries included. A tier
	// that runs past it fails over to the next one. Zero means no bound.
	CallTimeout time.Duration
}

// Service tries each tier in order until one embeds the whole request
type Service struct {
	tiers         []llm.Embedder
	batchSize     int
	maxInputChars int
	callTimeout   time.Duration
	logger        *slog.Logger
}

// NewService creates an embedding service over the given tiers, most preferred first
func NewService(tiers []llm.Embedder, opts Options, logger *slog.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tiers:         tiers,
		batchSize:     opts.BatchSize,
		maxInputChars: opts.MaxInputChars,
		callTimeout:   opts.CallTimeout,
		logger:        logger,
	}
}

// Tiers returns the configured tiers in preference order
func (s *Service) Tiers() []llm.Embedder {
	return s.tiers
}

// Embed returns one vector per text, in input order, all from a single tier.
// When every tier fails the error wraps domain.ErrRetrievalUnavailable.
// Only cancellation of ctx itself stops the fall-through; a tier that
// exceeds the call timeout counts as a failed tier.
func (s *Service) Embed(ctx context.Context, texts []string, task llm.TaskType) (*Batch, error) {
	if len(texts) == 0 {
		return &Batch{Vectors: [][]float32{}}, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = s.prepare(t)
	}

	var errs []error
	for _, tier := range s.tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vecs, err := s.embedWith(ctx, tier, inputs, task)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("embedding tier failed",
				"tier", tier.Name(), "model", tier.Model(), "texts", len(inputs), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}

		return &Batch{
			Vectors: vecs,
			Space:   domain.VectorSpace{Model: tier.Model(), Dimension: len(vecs[0])},
			Tier:    tier.Name(),
		}, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no embedding tiers configured", domain.ErrRetrievalUnavailable)
	}
	return nil, fmt.Errorf("%w: all embedding tiers failed: %w", domain.ErrRetrievalUnavailable, errors.Join(errs...))
}

// embedWith runs the whole request on one tier, in sub-batches, and validates the output
func (s *Service) embedWith(ctx context.Context, tier llm.Embedder, inputs []string, task llm.TaskType) ([][]float32, error) {
	ctx, span := observability.StartProviderSpan(ctx, "embed", tier.Name(), tier.Model())
	defer span.End()

	out := make([][]float32, 0, len(inputs))
	dim := 0
	for start := 0; start < len(inputs); start += s.batchSize {
		end := min(start+s.batchSize, len(inputs))

		vecs, err := s.call(ctx, tier, inputs[start:end], task)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		if len(vecs) != end-start {
			err := fmt.Errorf("expected %d vectors, got %d", end-start, len(vecs))
			observability.RecordError(span, err)
			return nil, err
		}
		for i, v := range vecs {
			if dim == 0 {
				dim = len(v)
			}
			if err := checkVector(v, dim); err != nil {
				err = fmt.Errorf("vector %d: %w", start+i, err)
				observability.RecordError(span, err)
				return nil, err
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *Service) call(ctx context.Context, tier llm.Embedder, texts []string, task llm.TaskType) ([][]float32, error) {
	if s.callTimeout <= 0 {
		return tier.Embed(ctx, texts, task)
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return tier.Embed(ctx, texts, task)
}

func checkVector(v []float32, dim int) error {
	if len(v) == 0 {
		return errors.New("empty vector")
	}
	if len(v) != dim {
		return fmt.Errorf("dimension %d, expected %d", len(v), dim)
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.New("non-finite component")
		}
	}
	return nil
}

// prepare collapses whitespace and truncates to the provider input limit
func (s *Service) prepare(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= s.maxInputChars {
		return text
	}
	cut := s.maxInputChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
