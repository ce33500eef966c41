// Package gemini implements the embedding and generation tiers on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/perspectives-ai/rag/internal/llm"
)

const (
	DefaultEmbedModel    = "text-embedding-004"
	DefaultGenerateModel = "gemini-2.0-flash-exp"
)

// Client implements llm.Embedder and llm.Generator for Gemini.
type Client struct {
	client     *genai.Client
	model      string
	dimensions int
}

// New creates a Gemini client for the given model.
func New(ctx context.Context, cfg llm.ProviderConfig, defaultModel string) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{client: client, model: model, dimensions: cfg.Dimensions}, nil
}

func (c *Client) Name() string  { return "gemini" }
func (c *Client) Model() string { return c.model }

// Embed encodes texts with the retrieval task type matching the caller's intent.
func (c *Client) Embed(ctx context.Context, texts []string, task llm.TaskType) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	ec := &genai.EmbedContentConfig{TaskType: taskType(task)}
	if c.dimensions > 0 {
		dim := int32(c.dimensions)
		ec.OutputDimensionality = &dim
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, ec)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini embed: missing embedding %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// Generate runs a single-turn completion.
func (c *Client) Generate(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	gc := &genai.GenerateContentConfig{}
	if prompt.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(prompt.SystemPrompt, genai.RoleUser)
	}
	if opts != nil {
		if opts.Temperature != nil {
			gc.Temperature = genai.Ptr(float32(*opts.Temperature))
		}
		if opts.TopP != nil {
			gc.TopP = genai.Ptr(float32(*opts.TopP))
		}
		if opts.TopK != nil {
			gc.TopK = genai.Ptr(float32(*opts.TopK))
		}
		if opts.MaxTokens != nil {
			gc.MaxOutputTokens = int32(*opts.MaxTokens)
		}
	}

	var contents []*genai.Content
	for _, m := range prompt.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini generate: empty response")
	}

	out := &llm.Response{Content: text, Model: c.model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func taskType(task llm.TaskType) string {
	if task == llm.TaskQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}
