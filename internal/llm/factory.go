package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create any provider tier.
type ProviderConfig struct {
	Provider   string // "gemini", "openai", "ollama", "local"
	APIKey     string
	Model      string
	BaseURL    string // Override for self-hosted / compatible endpoints
	Dimensions int    // Requested output dimensionality for embedders (0 = model default)

	// Timeout and retry configuration
	Timeout    time.Duration // Per-attempt timeout
	MaxRetries int           // Max retry attempts
	RetryDelay time.Duration // Initial retry delay for exponential backoff

	// Client-side throttling
	RequestsPerSecond float64
	Burst             int
}

// DefaultProviderConfig returns a config with the default retry settings.
func DefaultProviderConfig() ProviderConfig {
	d := DefaultRetryConfig()
	return ProviderConfig{
		Timeout:    d.Timeout,
		MaxRetries: d.MaxRetries,
		RetryDelay: d.RetryDelay,
	}
}

// EmbedderConstructor builds an Embedder from config.
type EmbedderConstructor func(cfg ProviderConfig) (Embedder, error)

// GeneratorConstructor builds a Generator from config.
type GeneratorConstructor func(cfg ProviderConfig) (Generator, error)

// ProviderFactory creates embedders and generators from config.
type ProviderFactory struct {
	embedders  map[string]EmbedderConstructor
	generators map[string]GeneratorConstructor
}

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		embedders:  make(map[string]EmbedderConstructor),
		generators: make(map[string]GeneratorConstructor),
	}
}

// RegisterEmbedder adds an embedder constructor under the given name.
func (f *ProviderFactory) RegisterEmbedder(name string, ctor EmbedderConstructor) {
	f.embedders[name] = ctor
}

// RegisterGenerator adds a generator constructor under the given name.
func (f *ProviderFactory) RegisterGenerator(name string, ctor GeneratorConstructor) {
	f.generators[name] = ctor
}

// CreateEmbedder builds an embedder wrapped with rate limiting and retry logic.
func (f *ProviderFactory) CreateEmbedder(cfg ProviderConfig) (Embedder, error) {
	ctor, ok := f.embedders[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q (registered: %v)", cfg.Provider, names(f.embedders))
	}
	e, err := ctor(cfg)
	if err != nil {
		return nil, err
	}
	limited := NewRateLimitedEmbedder(e, rateConfig(cfg))
	return NewRetryEmbedder(limited, retryConfig(cfg)), nil
}

// CreateGenerator builds a generator wrapped with rate limiting and retry logic.
func (f *ProviderFactory) CreateGenerator(cfg ProviderConfig) (Generator, error) {
	ctor, ok := f.generators[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown generation provider %q (registered: %v)", cfg.Provider, names(f.generators))
	}
	g, err := ctor(cfg)
	if err != nil {
		return nil, err
	}
	limited := NewRateLimitedGenerator(g, rateConfig(cfg))
	return NewRetryGenerator(limited, retryConfig(cfg)), nil
}

// EmbedderNames lists registered embedding providers.
func (f *ProviderFactory) EmbedderNames() []string { return names(f.embedders) }

// GeneratorNames lists registered generation providers.
func (f *ProviderFactory) GeneratorNames() []string { return names(f.generators) }

func retryConfig(cfg ProviderConfig) *RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.Timeout > 0 {
		rc.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries >= 0 {
		rc.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		rc.RetryDelay = cfg.RetryDelay
	}
	return rc
}

func rateConfig(cfg ProviderConfig) *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		BurstSize:         cfg.Burst,
	}
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders documents the built-in provider presets and their default endpoints.
//
//	gemini → https://generativelanguage.googleapis.com
//	openai → https://api.openai.com/v1
//	ollama → http://localhost:11434
//	local  → in-process hashing embedder (embeddings only)
var KnownProviders = map[string]string{
	"gemini": "https://generativelanguage.googleapis.com",
	"openai": "https://api.openai.com/v1",
	"ollama": "http://localhost:11434",
	"local":  "(in-process, embeddings only)",
}
