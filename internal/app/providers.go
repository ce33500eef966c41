package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/perspectives-ai/rag/config"
	"github.com/perspectives-ai/rag/internal/embeddings"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/llm/gemini"
	"github.com/perspectives-ai/rag/internal/llm/openai"
	"github.com/perspectives-ai/rag/internal/ollama"
)

// NewFactory returns a provider factory with every built-in provider registered
func NewFactory(ctx context.Context) *llm.ProviderFactory {
	f := llm.NewFactory()

	f.RegisterEmbedder("gemini", func(cfg llm.ProviderConfig) (llm.Embedder, error) {
		return gemini.New(ctx, cfg, gemini.DefaultEmbedModel)
	})
	f.RegisterGenerator("gemini", func(cfg llm.ProviderConfig) (llm.Generator, error) {
		return gemini.New(ctx, cfg, gemini.DefaultGenerateModel)
	})

	f.RegisterEmbedder("openai", func(cfg llm.ProviderConfig) (llm.Embedder, error) {
		return openai.New(cfg, openai.DefaultEmbedModel)
	})
	f.RegisterGenerator("openai", func(cfg llm.ProviderConfig) (llm.Generator, error) {
		return openai.New(cfg, openai.DefaultGenerateModel)
	})

	f.RegisterEmbedder("ollama", func(cfg llm.ProviderConfig) (llm.Embedder, error) {
		return ollama.NewEmbedder(ollama.NewClient(cfg.BaseURL), cfg.Model), nil
	})
	f.RegisterGenerator("ollama", func(cfg llm.ProviderConfig) (llm.Generator, error) {
		return ollama.NewGenerator(ollama.NewClient(cfg.BaseURL), cfg.Model), nil
	})

	f.RegisterEmbedder("local", func(cfg llm.ProviderConfig) (llm.Embedder, error) {
		return embeddings.NewHashEmbedder(cfg.Dimensions), nil
	})

	return f
}

// providerConfig merges one tier's settings with the shared retry settings
func providerConfig(cfg *config.Config, t config.ProviderSettings) llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = t.Provider
	pc.APIKey = t.APIKey
	pc.Model = t.Model
	pc.BaseURL = t.BaseURL
	pc.Dimensions = t.Dimensions
	pc.RequestsPerSecond = t.RequestsPerSecond
	pc.Burst = t.Burst
	pc.MaxRetries = cfg.Retry.MaxRetries
	if cfg.Retry.Timeout > 0 {
		pc.Timeout = cfg.Retry.Timeout
	}
	if cfg.Retry.Delay > 0 {
		pc.RetryDelay = cfg.Retry.Delay
	}
	return pc
}

// BuildEmbedders creates the configured embedding tiers in order. Tiers that
// cannot be created are logged and skipped.
func BuildEmbedders(f *llm.ProviderFactory, cfg *config.Config, logger *slog.Logger) ([]llm.Embedder, error) {
	var tiers []llm.Embedder
	for _, t := range cfg.Embeddings.Tiers {
		e, err := f.CreateEmbedder(providerConfig(cfg, t))
		if err != nil {
			logger.Warn("skipping embedding tier", "provider", t.Provider, "error", err)
			continue
		}
		tiers = append(tiers, e)
	}
	if len(tiers) == 0 {
		return nil, errors.New("no usable embedding tier; configure an API key or add the local provider")
	}
	return tiers, nil
}

// BuildGenerators creates the configured generation tiers in order. Having
// none is allowed: answers then use the extractive fallback.
func BuildGenerators(f *llm.ProviderFactory, cfg *config.Config, logger *slog.Logger) []llm.Generator {
	var tiers []llm.Generator
	for _, t := range cfg.Generation.Tiers {
		if t.Provider == "ollama" && t.Model == "" {
			t.Model = cfg.Ollama.DefaultModel
		}
		g, err := f.CreateGenerator(providerConfig(cfg, t))
		if err != nil {
			logger.Warn("skipping generation tier", "provider", t.Provider, "error", err)
			continue
		}
		tiers = append(tiers, g)
	}
	if len(tiers) == 0 {
		logger.Warn("no generation tier available, answers will be extractive")
	}
	return tiers
}
