package llm

import "context"

// TaskType tells an embedder whether it is encoding corpus text or a query.
type TaskType string

const (
	TaskDocument TaskType = "document"
	TaskQuery    TaskType = "query"
)

// Embedder is the interface every embedding backend implements.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
	// Model returns the embedding model name, used to tag the vector space.
	Model() string
}

// Generator is the interface every text generation backend implements.
type Generator interface {
	// Generate sends a prompt and returns a completion.
	Generate(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	Name() string
	Model() string
}

// RequestOptions tunes a single generation call. Nil fields use provider defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	TopK        *int
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
