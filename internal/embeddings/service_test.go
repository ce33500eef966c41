package embeddings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/llm"
)

type stubTier struct {
	name, model string
	dim         int
	err         error
	short       bool // return one vector too few
	ragged      bool // return a vector with the wrong width

	mu      sync.Mutex
	batches [][]string
}

func (s *stubTier) Name() string  { return s.name }
func (s *stubTier) Model() string { return s.model }

func (s *stubTier) Embed(ctx context.Context, texts []string, task llm.TaskType) ([][]float32, error) {
	s.mu.Lock()
	s.batches = append(s.batches, append([]string(nil), texts...))
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	n := len(texts)
	if s.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, s.dim)
		if s.dim > 0 {
			out[i][0] = float32(len(texts[i]))
		}
	}
	if s.ragged && n > 1 {
		out[1] = make([]float32, s.dim+1)
	}
	return out, nil
}

func TestService_FirstTierWins(t *testing.T) {
	primary := &stubTier{name: "gemini", model: "text-embedding-004", dim: 4}
	secondary := &stubTier{name: "openai", model: "text-embedding-3-small", dim: 6}
	svc := NewService([]llm.Embedder{primary, secondary}, Options{}, nil)

	batch, err := svc.Embed(context.Background(), []string{"a", "bb"}, llm.TaskDocument)
	require.NoError(t, err)
	assert.Equal(t, domain.VectorSpace{Model: "text-embedding-004", Dimension: 4}, batch.Space)
	assert.Equal(t, "gemini", batch.Tier)
	require.Len(t, batch.Vectors, 2)
	assert.Equal(t, float32(2), batch.Vectors[1][0], "order must follow input")
	assert.Empty(t, secondary.batches)
}

func TestService_FallsThroughOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		primary *stubTier
	}{
		{"error", &stubTier{name: "p", model: "p", dim: 4, err: errors.New("503")}},
		{"count mismatch", &stubTier{name: "p", model: "p", dim: 4, short: true}},
		{"ragged", &stubTier{name: "p", model: "p", dim: 4, ragged: true}},
		{"empty vectors", &stubTier{name: "p", model: "p", dim: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := NewHashEmbedder(8)
			svc := NewService([]llm.Embedder{tt.primary, fallback}, Options{}, nil)

			batch, err := svc.Embed(context.Background(), []string{"inflation rose", "rates fell"}, llm.TaskDocument)
			require.NoError(t, err)
			assert.Equal(t, domain.VectorSpace{Model: "local-hash-8", Dimension: 8}, batch.Space)
			assert.Equal(t, "local", batch.Tier)
			assert.Len(t, batch.Vectors, 2)
		})
	}
}

func TestService_AllTiersFail(t *testing.T) {
	svc := NewService([]llm.Embedder{
		&stubTier{name: "a", model: "a", err: errors.New("boom")},
		&stubTier{name: "b", model: "b", err: errors.New("bang")},
	}, Options{}, nil)

	batch, err := svc.Embed(context.Background(), []string{"x"}, llm.TaskQuery)
	assert.Nil(t, batch)
	require.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "bang")
}

func TestService_NoTiers(t *testing.T) {
	_, err := NewService(nil, Options{}, nil).Embed(context.Background(), []string{"x"}, llm.TaskQuery)
	require.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
}

func TestService_EmptyInput(t *testing.T) {
	tier := &stubTier{name: "a", model: "a", dim: 3}
	batch, err := NewService([]llm.Embedder{tier}, Options{}, nil).Embed(context.Background(), nil, llm.TaskDocument)
	require.NoError(t, err)
	assert.Empty(t, batch.Vectors)
	assert.Empty(t, tier.batches)
}

func TestService_SubBatchesStayOnOneTier(t *testing.T) {
	tier := &stubTier{name: "a", model: "a", dim: 3}
	svc := NewService([]llm.Embedder{tier}, Options{BatchSize: 2}, nil)

	batch, err := svc.Embed(context.Background(), []string{"1", "2", "3", "4", "5"}, llm.TaskDocument)
	require.NoError(t, err)
	assert.Len(t, batch.Vectors, 5)
	require.Len(t, tier.batches, 3)
	assert.Equal(t, []string{"5"}, tier.batches[2])
}

func TestService_PreparesInput(t *testing.T) {
	tier := &stubTier{name: "a", model: "a", dim: 3}
	svc := NewService([]llm.Embedder{tier}, Options{MaxInputChars: 10}, nil)

	_, err := svc.Embed(context.Background(), []string{"  many   spaces\n\there and more text  "}, llm.TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, "many space", tier.batches[0][0])

	// never cut inside a multi-byte rune
	_, err = svc.Embed(context.Background(), []string{strings.Repeat("é", 8)}, llm.TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 5), tier.batches[1][0])
}

func TestService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tier := &stubTier{name: "a", model: "a", dim: 3}

	_, err := NewService([]llm.Embedder{tier}, Options{}, nil).Embed(ctx, []string{"x"}, llm.TaskQuery)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tier.batches)
}

// hangingTier blocks until its context ends
type hangingTier struct{}

func (hangingTier) Name() string  { return "gemini" }
func (hangingTier) Model() string { return "text-embedding-004" }

func (hangingTier) Embed(ctx context.Context, texts []string, task llm.TaskType) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestService_CallTimeoutFallsThrough(t *testing.T) {
	fallback := &stubTier{name: "local", model: "local-hash-3", dim: 3}
	svc := NewService([]llm.Embedder{hangingTier{}, fallback}, Options{CallTimeout: 20 * time.Millisecond}, nil)

	batch, err := svc.Embed(context.Background(), []string{"x"}, llm.TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, "local", batch.Tier)
}

func TestService_CallerDeadlineStopsFallThrough(t *testing.T) {
	fallback := &stubTier{name: "local", model: "local-hash-3", dim: 3}
	svc := NewService([]llm.Embedder{hangingTier{}, fallback}, Options{CallTimeout: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Embed(ctx, []string{"x"}, llm.TaskQuery)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, fallback.batches)
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(0)
	assert.Equal(t, "local-hash-384", h.Model())

	vecs, err := h.Embed(context.Background(), []string{"Monetary policy and inflation", "monetary POLICY, and inflation!", ""}, llm.TaskDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], DefaultHashDimension)
	assert.Equal(t, vecs[0], vecs[1], "tokenization ignores case and punctuation")

	for _, v := range vecs {
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	}
}
