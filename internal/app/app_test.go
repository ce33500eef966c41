package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/config"
	"github.com/perspectives-ai/rag/internal/documents"
	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/logging"
)

func localConfig() *config.Config {
	cfg := config.Default()
	cfg.Embeddings.Tiers = []config.ProviderSettings{
		{Provider: "gemini"},
		{Provider: "local", Dimensions: 128},
	}
	cfg.Generation.Tiers = []config.ProviderSettings{{Provider: "openai"}}
	return cfg
}

func TestNewFactory_RegistersProviders(t *testing.T) {
	f := NewFactory(context.Background())
	assert.Equal(t, []string{"gemini", "local", "ollama", "openai"}, f.EmbedderNames())
	assert.Equal(t, []string{"gemini", "ollama", "openai"}, f.GeneratorNames())
}

func TestBuildEmbedders_SkipsUnusableTiers(t *testing.T) {
	f := NewFactory(context.Background())
	tiers, err := BuildEmbedders(f, localConfig(), logging.Discard())
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "local", tiers[0].Name())
	assert.Equal(t, "local-hash-128", tiers[0].Model())

	cfg := localConfig()
	cfg.Embeddings.Tiers = []config.ProviderSettings{{Provider: "openai"}}
	_, err = BuildEmbedders(f, cfg, logging.Discard())
	require.Error(t, err)
}

func TestBuildGenerators_ResolvesOllamaDefaultModel(t *testing.T) {
	cfg := localConfig()
	cfg.Ollama.DefaultModel = "llama3.2"
	cfg.Generation.Tiers = []config.ProviderSettings{{Provider: "ollama"}, {Provider: "gemini"}}

	gens := BuildGenerators(NewFactory(context.Background()), cfg, logging.Discard())
	require.Len(t, gens, 1)
	assert.Equal(t, "ollama", gens[0].Name())
	assert.Equal(t, "llama3.2", gens[0].Model())
}

func TestApp_EndToEndInMemory(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Processor.Ingest(ctx, documents.Source{
		Filename: "outlook.txt",
		Pages: []string{
			"Provincial exports rose eight percent, led by energy and agriculture.",
			"Unemployment fell to five percent in the final quarter.",
		},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "local-hash-128", res.Space.Model)

	answer, err := a.Pipeline.Ask(ctx, domain.Query{Text: "Provincial exports rose", MaxResults: 5})
	require.NoError(t, err)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "outlook.txt", answer.Sources[0].Filename)
	assert.True(t, strings.HasPrefix(answer.Text, "Based on the available documents:"))
	assert.Positive(t, answer.Confidence)

	status, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 1, status.Processed)
	assert.Equal(t, []Tier{{Provider: "local", Model: "local-hash-128"}}, status.EmbeddingTiers)
	assert.Empty(t, status.GenerationTiers)
	require.Len(t, status.Spaces, 1)
	assert.Equal(t, 2, status.Spaces[0].Vectors)
}

func TestApp_RejectsBadBackends(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Index = config.BackendPostgres
	_, err := New(context.Background(), cfg, logging.Discard())
	require.Error(t, err)

	cfg = localConfig()
	cfg.Store.Catalog = "sqlite"
	_, err = New(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
}

func TestApp_PreloadsDocumentsIntoMemory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outlook.txt"),
		[]byte("Provincial exports rose eight percent, led by energy and agriculture."), 0o644))

	cfg := localConfig()
	cfg.Paths.DocumentsDir = dir
	a, err := New(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	results, err := a.Preload(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	answer, err := a.Pipeline.Ask(ctx, domain.Query{Text: "Provincial exports rose", MaxResults: 5})
	require.NoError(t, err)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "outlook.txt", answer.Sources[0].Filename)
}

func TestApp_PreloadSkipsMissingDirectory(t *testing.T) {
	cfg := localConfig()
	cfg.Paths.DocumentsDir = filepath.Join(t.TempDir(), "absent")
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	results, err := a.Preload(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
