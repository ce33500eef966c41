package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/llm"
)

const (
	DefaultContextTokens = 2000
	truncatedMarker      = "\n\n[Context truncated...]"
)

// SystemPrompt restricts the model to the supplied excerpts
const SystemPrompt = `You are a research assistant that answers questions using only the document excerpts provided to you.

Your responses should be:
- Accurate and based solely on the provided sources
- Well-structured and easy to understand
- Specific, quoting figures and statistics when the sources give them
- Cited, referring to excerpts as [Source N]

If the sources do not contain enough information to answer the question, say so clearly and state what is missing.`

// ContextBuilder builds context for LLM from retrieval results
type ContextBuilder struct {
	maxChars int
}

// NewContextBuilder creates a new context builder. The character budget is
// estimated at four characters per token.
func NewContextBuilder(maxTokens int) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}
	return &ContextBuilder{
		maxChars: maxTokens * 4,
	}
}

// BuildContext formats results as numbered source blocks in the given order
func (cb *ContextBuilder) BuildContext(results []domain.RetrievalResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Source %d: %s, Page %d]\n%s",
			i+1, sourceTitle(r), r.Page, strings.TrimSpace(r.ChunkText)))
	}
	context := strings.Join(parts, "\n\n")

	if len(context) > cb.maxChars {
		cut := cb.maxChars
		for cut > 0 && !utf8.RuneStart(context[cut]) {
			cut--
		}
		context = context[:cut] + truncatedMarker
	}
	return context
}

// BuildPrompt creates a complete prompt with context and user query
func (cb *ContextBuilder) BuildPrompt(context, query string) *llm.Prompt {
	var parts []string
	parts = append(parts, "Context from the document collection:")
	parts = append(parts, context)
	parts = append(parts, "")
	parts = append(parts, "Question: "+query)
	parts = append(parts, "")
	parts = append(parts, "Answer using only the sources above and cite them as [Source N].")
	parts = append(parts, "If the sources do not fully address the question, state what information is missing.")

	return &llm.Prompt{
		SystemPrompt: SystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: strings.Join(parts, "\n")},
		},
	}
}

func sourceTitle(r domain.RetrievalResult) string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Filename != "":
		return r.Filename
	}
	return "Unknown Document"
}
