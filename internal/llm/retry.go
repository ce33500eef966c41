package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (0 = no retries)
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries (caps exponential backoff)
	Timeout    time.Duration // Per-attempt timeout
}

// DefaultRetryConfig returns the default configuration. Retries stay low because
// a failing tier falls through to the next one.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    15 * time.Second,
	}
}

type retrier struct {
	config *RetryConfig
}

func newRetrier(config *RetryConfig) retrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return retrier{config: config}
}

// do runs fn until it succeeds, fails permanently, or runs out of attempts.
// Each attempt is awaited with the per-attempt timeout.
func do[T any](ctx context.Context, r retrier, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		val, err := Await(ctx, r.config.Timeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !isRetryable(err) {
			return zero, fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// calculateBackoff returns the delay for the given attempt using exponential backoff.
func (r retrier) calculateBackoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
			break
		}
	}
	return delay
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := err.Error()

	// Quota exhaustion will not clear within a retry window
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "RESOURCE_EXHAUSTED") {
		return !strings.Contains(errStr, "per day") && !strings.Contains(errStr, "quota exceeded")
	}

	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, http.StatusText(http.StatusInternalServerError)) ||
		strings.Contains(errStr, http.StatusText(http.StatusBadGateway)) ||
		strings.Contains(errStr, http.StatusText(http.StatusServiceUnavailable)) ||
		strings.Contains(errStr, http.StatusText(http.StatusGatewayTimeout)) {
		return true
	}

	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "API key") {
		return false
	}

	return true
}

// RetryEmbedder wraps an Embedder with timeout and retry logic.
type RetryEmbedder struct {
	inner Embedder
	r     retrier
}

// NewRetryEmbedder wraps an existing embedder with retry logic.
func NewRetryEmbedder(inner Embedder, config *RetryConfig) *RetryEmbedder {
	return &RetryEmbedder{inner: inner, r: newRetrier(config)}
}

func (e *RetryEmbedder) Name() string  { return e.inner.Name() }
func (e *RetryEmbedder) Model() string { return e.inner.Model() }

// Embed sends an embedding request with timeout and retry logic.
func (e *RetryEmbedder) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	return do(ctx, e.r, func(ctx context.Context) ([][]float32, error) {
		return e.inner.Embed(ctx, texts, task)
	})
}

// RetryGenerator wraps a Generator with timeout and retry logic.
type RetryGenerator struct {
	inner Generator
	r     retrier
}

// NewRetryGenerator wraps an existing generator with retry logic.
func NewRetryGenerator(inner Generator, config *RetryConfig) *RetryGenerator {
	return &RetryGenerator{inner: inner, r: newRetrier(config)}
}

func (g *RetryGenerator) Name() string  { return g.inner.Name() }
func (g *RetryGenerator) Model() string { return g.inner.Model() }

// Generate sends a prompt with timeout and retry logic.
func (g *RetryGenerator) Generate(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	return do(ctx, g.r, func(ctx context.Context) (*Response, error) {
		return g.inner.Generate(ctx, prompt, opts)
	})
}
