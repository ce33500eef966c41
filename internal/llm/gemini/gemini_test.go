package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/internal/llm"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), llm.ProviderConfig{}, DefaultEmbedModel)
	require.Error(t, err)
}

func TestNew_DefaultModel(t *testing.T) {
	c, err := New(context.Background(), llm.ProviderConfig{APIKey: "test-key"}, DefaultEmbedModel)
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.Name())
	assert.Equal(t, DefaultEmbedModel, c.Model())
}

func TestTaskType(t *testing.T) {
	assert.Equal(t, "RETRIEVAL_QUERY", taskType(llm.TaskQuery))
	assert.Equal(t, "RETRIEVAL_DOCUMENT", taskType(llm.TaskDocument))
}
