package rag

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/embeddings"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/logging"
	"github.com/perspectives-ai/rag/internal/vectorstore"
	"github.com/perspectives-ai/rag/internal/vectorstore/memory"
)

var testSpace = domain.VectorSpace{Model: "stub", Dimension: 2}

// stubEmbedder maps query text to fixed vectors
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string, task llm.TaskType) (*embeddings.Batch, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 1}
		}
		out[i] = v
	}
	return &embeddings.Batch{Vectors: out, Space: testSpace, Tier: "stub"}, nil
}

// stubGenerator returns a fixed completion or error
type stubGenerator struct {
	name    string
	content string
	err     error
	calls   atomic.Int32
	prompt  *llm.Prompt
	opts    *llm.RequestOptions
}

func (g *stubGenerator) Generate(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	g.calls.Add(1)
	g.prompt, g.opts = prompt, opts
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Content: g.content}, nil
}

func (g *stubGenerator) Name() string  { return g.name }
func (g *stubGenerator) Model() string { return g.name + "-model" }

// failingIndex wraps an index and fails every search
type failingIndex struct {
	vectorstore.Index
	err error
}

func (f failingIndex) Search(context.Context, vectorstore.Query) ([]domain.RetrievalResult, error) {
	return nil, f.err
}

// seededStore returns a store holding three chunks at known angles to [1, 0]
func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	doc := &domain.Document{ID: uuid.New(), Title: "Outlook", Filename: "outlook.pdf", UploadedAt: time.Now()}
	require.NoError(t, store.UpsertDocument(ctx, doc))

	texts := []string{"exports rose", "inflation eased", "weather report"}
	vecs := [][]float32{{1, 0}, {0.8, 0.6}, {0, 1}}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{ID: domain.ChunkID(doc.ID, i, text), DocumentID: doc.ID, Text: text, Sequence: i, Page: i + 1}
	}
	require.NoError(t, store.ReplaceChunks(ctx, doc.ID, chunks))
	require.NoError(t, store.ReplaceDocument(ctx, doc.ID, testSpace, vectorstore.NewRecords(doc, chunks, vecs)))
	return store
}

func newTestPipeline(t *testing.T, emb *stubEmbedder, index vectorstore.Index, gens ...llm.Generator) *Pipeline {
	t.Helper()
	log := logging.Discard()
	opts := DefaultSynthesizerOptions()
	opts.Timeout = time.Second
	return NewPipeline(
		NewRetriever(emb, index, DefaultSimilarityFloor, log),
		NewSynthesizer(gens, opts, log),
		DefaultMaxResultsLimit,
		log,
	)
}
