package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/perspectives-ai/rag/internal/domain"
)

func TestBuildContext_Format(t *testing.T) {
	cb := NewContextBuilder(0)
	got := cb.BuildContext([]domain.RetrievalResult{
		{Title: "Outlook", Page: 2, ChunkText: " Exports rose. \n"},
		{Filename: "notes.txt", Page: 1, ChunkText: "Prices fell."},
		{Page: 4, ChunkText: "Orphan."},
	})
	want := "[Source 1: Outlook, Page 2]\nExports rose.\n\n" +
		"[Source 2: notes.txt, Page 1]\nPrices fell.\n\n" +
		"[Source 3: Unknown Document, Page 4]\nOrphan."
	assert.Equal(t, want, got)
}

func TestBuildContext_TruncatesWithMarker(t *testing.T) {
	cb := NewContextBuilder(10)
	got := cb.BuildContext([]domain.RetrievalResult{{Title: "T", Page: 1, ChunkText: strings.Repeat("ü", 100)}})
	assert.True(t, strings.HasSuffix(got, truncatedMarker))
	assert.LessOrEqual(t, len(got), 40+len(truncatedMarker))
	assert.True(t, utf8.ValidString(got))
}

func TestBuildPrompt(t *testing.T) {
	p := NewContextBuilder(0).BuildPrompt("[Source 1: A, Page 1]\ntext", "What happened?")
	assert.Equal(t, SystemPrompt, p.SystemPrompt)
	assert.Len(t, p.Messages, 1)
	assert.Contains(t, p.UserText(), "[Source 1: A, Page 1]\ntext")
	assert.Contains(t, p.UserText(), "Question: What happened?")
}
