package qdrant

import (
	"testing"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/vectorstore"
)

func TestCollectionName_RoundTrip(t *testing.T) {
	tests := []struct {
		space domain.VectorSpace
		name  string
		model string
	}{
		{domain.VectorSpace{Model: "text-embedding-004", Dimension: 768}, "chunks_text-embedding-004_768", "text-embedding-004"},
		{domain.VectorSpace{Model: "nomic-embed-text:latest", Dimension: 768}, "chunks_nomic-embed-text_latest_768", "nomic-embed-text_latest"},
		{domain.VectorSpace{Model: "local-hash-384", Dimension: 384}, "chunks_local-hash-384_384", "local-hash-384"},
	}
	for _, tt := range tests {
		name := CollectionName("chunks", tt.space)
		assert.Equal(t, tt.name, name)

		space, ok := parseCollection("chunks", name)
		require.True(t, ok)
		assert.Equal(t, tt.model, space.Model)
		assert.Equal(t, tt.space.Dimension, space.Dimension)
	}
}

func TestParseCollection_Foreign(t *testing.T) {
	for _, name := range []string{"other_model_3", "chunks_", "chunks_model", "chunks_model_x"} {
		_, ok := parseCollection("chunks", name)
		assert.False(t, ok, name)
	}
}

func TestPointConversion(t *testing.T) {
	rec := vectorstore.Record{
		ChunkID:    uuid.New(),
		DocumentID: uuid.New(),
		Title:      "Outlook",
		Filename:   "outlook.pdf",
		Page:       7,
		Text:       "growth slowed",
		Vector:     []float32{0.1, 0.2},
	}
	pt := toPoint(rec, domain.VectorSpace{Model: "m", Dimension: 2})

	scored := &pb.ScoredPoint{Id: pt.Id, Payload: pt.Payload, Score: 0.75}
	got, err := fromScored(scored)
	require.NoError(t, err)
	assert.Equal(t, rec.ChunkID, got.ChunkID)
	assert.Equal(t, rec.DocumentID, got.DocumentID)
	assert.Equal(t, "Outlook", got.Title)
	assert.Equal(t, 7, got.Page)
	assert.Equal(t, "growth slowed", got.ChunkText)
	assert.InDelta(t, 0.75, got.Similarity, 1e-6)
}

func TestDocumentFilter(t *testing.T) {
	id := uuid.New()
	f := documentFilter(id)
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, "document_id", field.GetKey())
	assert.Equal(t, id.String(), field.GetMatch().GetKeyword())
	assert.Empty(t, f.GetMustNot())
}

func TestDocumentFilter_KeepsNewPoints(t *testing.T) {
	id := uuid.New()
	keep := []uuid.UUID{uuid.New(), uuid.New()}
	f := documentFilter(id, keep...)

	require.Len(t, f.GetMust(), 1)
	require.Len(t, f.GetMustNot(), 1)
	ids := f.GetMustNot()[0].GetHasId().GetHasId()
	require.Len(t, ids, 2)
	assert.Equal(t, keep[0].String(), ids[0].GetUuid())
	assert.Equal(t, keep[1].String(), ids[1].GetUuid())
}
