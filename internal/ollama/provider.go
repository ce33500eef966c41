// Package ollama talks to a local Ollama daemon and exposes it as an
// embedding and generation tier.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/perspectives-ai/rag/internal/llm"
)

const (
	DefaultEmbedModel = "nomic-embed-text"

	// nomic-embed-text is trained with task instruction prefixes
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// Embedder implements llm.Embedder on /api/embed
type Embedder struct {
	client *Client
	model  string
}

// NewEmbedder creates an Ollama embedding tier
func NewEmbedder(client *Client, model string) *Embedder {
	if model == "" {
		model = DefaultEmbedModel
	}
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Name() string  { return "ollama" }
func (e *Embedder) Model() string { return e.model }

// Embed generates embeddings, adding the instruction prefix nomic models expect
func (e *Embedder) Embed(ctx context.Context, texts []string, task llm.TaskType) ([][]float32, error) {
	input := texts
	if strings.HasPrefix(e.model, "nomic-embed") {
		prefix := documentPrefix
		if task == llm.TaskQuery {
			prefix = queryPrefix
		}
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = prefix + t
		}
	}

	vecs, err := e.client.Embed(ctx, e.model, input)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Generator implements llm.Generator on /api/generate
type Generator struct {
	client    *Client
	preferred string

	mu    sync.Mutex
	model string
}

// NewGenerator creates an Ollama generation tier. An empty model selects the
// best pulled model on first use.
func NewGenerator(client *Client, model string) *Generator {
	return &Generator{client: client, preferred: model}
}

func (g *Generator) Name() string { return "ollama" }

func (g *Generator) Model() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != "" {
		return g.model
	}
	return g.preferred
}

// resolve picks the model once it is reachable; failures are retried on the next call
func (g *Generator) resolve(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != "" {
		return g.model, nil
	}
	model, err := g.client.ResolveModel(ctx, g.preferred)
	if err != nil {
		return "", err
	}
	g.model = model
	return model, nil
}

// Generate runs a completion with the resolved model
func (g *Generator) Generate(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	model, err := g.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama model: %w", err)
	}

	req := &GenerateRequest{
		Model:  model,
		Prompt: prompt.UserText(),
		System: prompt.SystemPrompt,
	}
	if opts != nil {
		req.Options = map[string]any{}
		if opts.Temperature != nil {
			req.Options["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			req.Options["top_p"] = *opts.TopP
		}
		if opts.TopK != nil {
			req.Options["top_k"] = *opts.TopK
		}
		if opts.MaxTokens != nil {
			req.Options["num_predict"] = *opts.MaxTokens
		}
	}

	resp, err := g.client.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return nil, errors.New("ollama generate: empty response")
	}
	return &llm.Response{
		Content:      resp.Response,
		Model:        model,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		StopReason:   resp.DoneReason,
	}, nil
}
