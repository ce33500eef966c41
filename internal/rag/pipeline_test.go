package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/internal/domain"
)

func TestAsk_ValidatesBeforeAnyProviderCall(t *testing.T) {
	emb := &stubEmbedder{}
	gen := &stubGenerator{name: "gemini", content: "answer"}
	p := newTestPipeline(t, emb, seededStore(t), gen)

	for _, q := range []domain.Query{
		{Text: "", MaxResults: 5},
		{Text: "  \n\t", MaxResults: 5},
		{Text: "exports", MaxResults: 0},
		{Text: "exports", MaxResults: -3},
	} {
		_, err := p.Ask(context.Background(), q)
		require.ErrorIs(t, err, domain.ErrInvalidQuery, "%+v", q)
	}
	assert.Zero(t, emb.calls.Load())
	assert.Zero(t, gen.calls.Load())
}

func TestAsk_AnswersWithSources(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"exports": {1, 0}}}
	gen := &stubGenerator{name: "gemini", content: "Exports rose [Source 1]."}
	p := newTestPipeline(t, emb, seededStore(t), gen)

	answer, err := p.Ask(context.Background(), domain.Query{Text: "  exports ", MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, "Exports rose [Source 1].", answer.Text)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "exports rose", answer.Sources[0].ChunkText)
	assert.Equal(t, 1, answer.Sources[0].Page)
	assert.Equal(t, 0.9, answer.Confidence)
}

func TestAsk_ClampsMaxResults(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"exports": {1, 0}}}
	p := newTestPipeline(t, emb, seededStore(t))
	p.maxResultsLimit = 1

	answer, err := p.Ask(context.Background(), domain.Query{Text: "exports", MaxResults: 500})
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 1)
}

func TestAsk_NoMatches(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"unrelated": {-1, 0}}}
	gen := &stubGenerator{name: "gemini", content: "should not be called"}
	p := newTestPipeline(t, emb, seededStore(t), gen)

	answer, err := p.Ask(context.Background(), domain.Query{Text: "unrelated", MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, answer.Confidence)
	assert.Zero(t, gen.calls.Load())
}

func TestAsk_RetrievalUnavailableIsAnAnswer(t *testing.T) {
	emb := &stubEmbedder{err: domain.ErrRetrievalUnavailable}
	gen := &stubGenerator{name: "gemini", content: "unused"}
	p := newTestPipeline(t, emb, seededStore(t), gen)

	answer, err := p.Ask(context.Background(), domain.Query{Text: "exports", MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, UnavailableAnswer, answer.Text)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, answer.Confidence)
	assert.Zero(t, gen.calls.Load())
}

func TestAsk_GenerationOutageUsesFallback(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"exports": {1, 0}}}
	p := newTestPipeline(t, emb, seededStore(t), &stubGenerator{name: "gemini", err: errors.New("down")})

	answer, err := p.Ask(context.Background(), domain.Query{Text: "exports", MaxResults: 5})
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "Based on the available documents: exports rose")
	assert.Len(t, answer.Sources, 2)
}

func TestAsk_CallerCancelled(t *testing.T) {
	emb := &stubEmbedder{delay: time.Second}
	p := newTestPipeline(t, emb, seededStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	answer, err := p.Ask(ctx, domain.Query{Text: "exports", MaxResults: 5})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, answer)
}
