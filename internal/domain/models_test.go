package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDocumentID_Deterministic(t *testing.T) {
	h := ContentHash("the same bytes")
	assert.Equal(t, DocumentID(h), DocumentID(h))
	assert.NotEqual(t, DocumentID(h), DocumentID(ContentHash("other bytes")))
}

func TestChunkID_DependsOnPositionAndText(t *testing.T) {
	doc := uuid.New()
	a := ChunkID(doc, 0, "alpha")
	assert.Equal(t, a, ChunkID(doc, 0, "alpha"))
	assert.NotEqual(t, a, ChunkID(doc, 1, "alpha"))
	assert.NotEqual(t, a, ChunkID(doc, 0, "beta"))
	assert.NotEqual(t, a, ChunkID(uuid.New(), 0, "alpha"))
}

func TestChunk_Body(t *testing.T) {
	c := Chunk{Text: "tail of previous. New text", Section: SectionMeta{OverlapChars: 18}}
	assert.Equal(t, "New text", c.Body())

	c.Section.OverlapChars = 0
	assert.Equal(t, c.Text, c.Body())
}

func TestVectorSpace_IsZero(t *testing.T) {
	assert.True(t, VectorSpace{}.IsZero())
	assert.True(t, VectorSpace{Model: "m"}.IsZero())
	assert.False(t, VectorSpace{Model: "m", Dimension: 3}.IsZero())
	assert.Equal(t, "m/3", VectorSpace{Model: "m", Dimension: 3}.String())
}
