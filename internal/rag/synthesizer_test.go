package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/logging"
)

func sampleResults() []domain.RetrievalResult {
	return []domain.RetrievalResult{
		{ChunkID: uuid.New(), Title: "Outlook", Page: 3, ChunkText: "Exports rose   eight percent.", Similarity: 0.9},
		{ChunkID: uuid.New(), Title: "Outlook", Page: 1, ChunkText: "Inflation eased.", Similarity: 0.5},
	}
}

func newTestSynthesizer(gens ...llm.Generator) *Synthesizer {
	opts := DefaultSynthesizerOptions()
	opts.Timeout = time.Second
	return NewSynthesizer(gens, opts, logging.Discard())
}

func TestSynthesize_NoResults(t *testing.T) {
	gen := &stubGenerator{name: "gemini", content: "unused"}
	s := newTestSynthesizer(gen)

	answer, err := s.Synthesize(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, answer.Text)
	assert.Zero(t, answer.Confidence)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, gen.calls.Load())
}

func TestSynthesize_UsesFirstWorkingTier(t *testing.T) {
	broken := &stubGenerator{name: "gemini", err: errors.New("503")}
	empty := &stubGenerator{name: "openai", content: "   "}
	working := &stubGenerator{name: "ollama", content: " Exports rose [Source 1]. "}
	s := newTestSynthesizer(broken, empty, working)

	results := sampleResults()
	answer, err := s.Synthesize(context.Background(), "How did exports do?", results)
	require.NoError(t, err)
	assert.Equal(t, "Exports rose [Source 1].", answer.Text)
	assert.Equal(t, results, answer.Sources)
	assert.Equal(t, int32(1), broken.calls.Load())
	assert.Equal(t, int32(1), empty.calls.Load())

	require.NotNil(t, working.prompt)
	assert.Equal(t, SystemPrompt, working.prompt.SystemPrompt)
	assert.Contains(t, working.prompt.UserText(), "[Source 1: Outlook, Page 3]")
	assert.Contains(t, working.prompt.UserText(), "Question: How did exports do?")
	require.NotNil(t, working.opts.MaxTokens)
	assert.Equal(t, 1000, *working.opts.MaxTokens)
	assert.InDelta(t, 0.3, *working.opts.Temperature, 1e-9)
}

func TestSynthesize_FallsBackToExtractiveAnswer(t *testing.T) {
	s := newTestSynthesizer(&stubGenerator{name: "gemini", err: errors.New("quota")})

	answer, err := s.Synthesize(context.Background(), "q", sampleResults())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer.Text, "Based on the available documents: Exports rose eight percent."))
	assert.Equal(t, 0.83, answer.Confidence)

	none := newTestSynthesizer()
	answer, err = none.Synthesize(context.Background(), "q", sampleResults())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer.Text, "Based on the available documents:"))
}

func TestSynthesize_ConfidenceIgnoresTier(t *testing.T) {
	results := sampleResults()
	a, err := newTestSynthesizer(&stubGenerator{name: "a", content: "short"}).Synthesize(context.Background(), "q", results)
	require.NoError(t, err)
	b, err := newTestSynthesizer().Synthesize(context.Background(), "q", results)
	require.NoError(t, err)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestSynthesize_CancelledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &stubGenerator{name: "gemini", content: "late"}
	_, err := newTestSynthesizer(gen).Synthesize(ctx, "q", sampleResults())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gen.calls.Load())
}

func TestFallbackAnswer_TruncatesRuneSafe(t *testing.T) {
	long := strings.Repeat("é", 600)
	text := FallbackAnswer([]domain.RetrievalResult{{ChunkText: long}})
	assert.Contains(t, text, strings.Repeat("é", 500)+"...")
	assert.NotContains(t, text, strings.Repeat("é", 501))
	assert.Equal(t, NoResultsAnswer, FallbackAnswer(nil))
}
