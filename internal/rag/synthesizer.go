package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/observability"
)

const (
	// NoResultsAnswer is returned when retrieval finds nothing
	NoResultsAnswer = "I couldn't find any relevant information to answer your question. " +
		"This might be because the documents haven't been processed yet or your query doesn't match the available content."

	fallbackPrefix  = "Based on the available documents: "
	fallbackNote    = "\n\n(Note: This is a simplified response. For more detailed analysis, please ensure a generation provider is configured.)"
	fallbackPreview = 500
)

// SynthesizerOptions tunes answer generation
type SynthesizerOptions struct {
	ContextTokens int
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	Timeout       time.Duration
	Confidence    ConfidencePolicy
}

// DefaultSynthesizerOptions returns settings tuned for factual answers
func DefaultSynthesizerOptions() SynthesizerOptions {
	return SynthesizerOptions{
		ContextTokens: DefaultContextTokens,
		MaxTokens:     1000,
		Temperature:   0.3,
		TopP:          0.8,
		TopK:          40,
		Timeout:       DefaultStageTimeout,
		Confidence:    DefaultConfidencePolicy(),
	}
}

// Synthesizer turns retrieval results into a cited answer
type Synthesizer struct {
	generators []llm.Generator
	builder    *ContextBuilder
	request    *llm.RequestOptions
	timeout    time.Duration
	policy     ConfidencePolicy
	logger     *slog.Logger
}

// NewSynthesizer creates a synthesizer over the given generation tiers, most
// preferred first. With no tiers every answer uses the extractive fallback.
func NewSynthesizer(generators []llm.Generator, opts SynthesizerOptions, logger *slog.Logger) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStageTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	request := &llm.RequestOptions{Temperature: llm.Ptr(opts.Temperature)}
	if opts.MaxTokens > 0 {
		request.MaxTokens = llm.Ptr(opts.MaxTokens)
	}
	if opts.TopP > 0 {
		request.TopP = llm.Ptr(opts.TopP)
	}
	if opts.TopK > 0 {
		request.TopK = llm.Ptr(opts.TopK)
	}
	return &Synthesizer{
		generators: generators,
		builder:    NewContextBuilder(opts.ContextTokens),
		request:    request,
		timeout:    opts.Timeout,
		policy:     opts.Confidence,
		logger:     logger,
	}
}

// Generators returns the configured tiers in preference order
func (s *Synthesizer) Generators() []llm.Generator {
	return s.generators
}

// Synthesize answers query from results. Sources are results in their
// given order and confidence depends on results only.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []domain.RetrievalResult) (*domain.Answer, error) {
	ctx, span := observability.StartStageSpan(ctx, "synthesize")
	defer span.End()

	if len(results) == 0 {
		observability.RecordAnswer(span, "none", 0)
		return &domain.Answer{Text: NoResultsAnswer, Sources: []domain.RetrievalResult{}}, nil
	}

	excerpts := s.builder.BuildContext(results)
	prompt := s.builder.BuildPrompt(excerpts, query)

	text, tier, err := s.generate(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			observability.RecordError(span, ctxErr)
			return nil, ctxErr
		}
		s.logger.Warn("generation unavailable, using extractive answer", "error", err)
		text, tier = FallbackAnswer(results), "fallback"
	}

	answer := &domain.Answer{
		Text:       text,
		Sources:    results,
		Confidence: s.policy.Score(results),
	}
	observability.RecordAnswer(span, tier, answer.Confidence)
	return answer, nil
}

// generate tries each tier in order and returns the first non-empty completion
func (s *Synthesizer) generate(ctx context.Context, prompt *llm.Prompt) (string, string, error) {
	var errs []error
	for _, g := range s.generators {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		resp, err := llm.Await(ctx, s.timeout, func(c context.Context) (*llm.Response, error) {
			c, span := observability.StartProviderSpan(c, "generate", g.Name(), g.Model())
			defer span.End()
			resp, err := g.Generate(c, prompt, s.request)
			observability.RecordError(span, err)
			return resp, err
		})
		if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
			err = errors.New("empty completion")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", "", ctxErr
			}
			s.logger.Warn("generation tier failed", "tier", g.Name(), "model", g.Model(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			continue
		}
		return strings.TrimSpace(resp.Content), g.Name(), nil
	}

	if len(errs) == 0 {
		return "", "", fmt.Errorf("%w: no generation tiers configured", domain.ErrGenerationUnavailable)
	}
	return "", "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, errors.Join(errs...))
}

// FallbackAnswer builds an extractive answer from the top excerpt
func FallbackAnswer(results []domain.RetrievalResult) string {
	if len(results) == 0 {
		return NoResultsAnswer
	}
	preview := strings.Join(strings.Fields(results[0].ChunkText), " ")
	if utf8.RuneCountInString(preview) > fallbackPreview {
		preview = string([]rune(preview)[:fallbackPreview]) + "..."
	}
	return fallbackPrefix + preview + fallbackNote
}
