package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side throttling for a provider.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate (0 = unlimited)
	RequestsPerSecond float64
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults for hosted APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         5,
	}
}

func newLimiter(config *RateLimitConfig) *rate.Limiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
}

// RateLimitedEmbedder wraps an embedder with a token bucket.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder creates a rate-limited embedder wrapper.
func NewRateLimitedEmbedder(inner Embedder, config *RateLimitConfig) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{inner: inner, limiter: newLimiter(config)}
}

func (e *RateLimitedEmbedder) Name() string  { return e.inner.Name() }
func (e *RateLimitedEmbedder) Model() string { return e.inner.Model() }

// Embed waits for capacity and delegates to the inner embedder.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, texts, task)
}

// RateLimitedGenerator wraps a generator with a token bucket.
type RateLimitedGenerator struct {
	inner   Generator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator creates a rate-limited generator wrapper.
func NewRateLimitedGenerator(inner Generator, config *RateLimitConfig) *RateLimitedGenerator {
	return &RateLimitedGenerator{inner: inner, limiter: newLimiter(config)}
}

func (g *RateLimitedGenerator) Name() string  { return g.inner.Name() }
func (g *RateLimitedGenerator) Model() string { return g.inner.Model() }

// Generate waits for capacity and delegates to the inner generator.
func (g *RateLimitedGenerator) Generate(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.Generate(ctx, prompt, opts)
}
