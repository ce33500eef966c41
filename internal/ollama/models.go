package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// ModelInfo represents information about an Ollama model
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// ListModelsResponse represents the response from listing models
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// preferredModels ranks generation models for grounded question answering
var preferredModels = []string{
	"llama3.2",
	"llama3.1",
	"qwen2.5",
	"mistral",
	"llama3",
}

// ListModels lists all locally pulled models
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, string(body))
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// ResolveModel returns preferred when it is pulled, otherwise the best available generation model
func (c *Client) ResolveModel(ctx context.Context, preferred string) (string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return "", err
	}
	return selectModel(models, preferred)
}

func selectModel(models []ModelInfo, preferred string) (string, error) {
	if len(models) == 0 {
		return "", fmt.Errorf("no models available")
	}

	if preferred != "" {
		for _, m := range models {
			if m.Name == preferred || strings.TrimSuffix(m.Name, ":latest") == preferred {
				return m.Name, nil
			}
		}
	}

	for _, priority := range preferredModels {
		for _, m := range models {
			if strings.Contains(strings.ToLower(m.Name), priority) {
				return m.Name, nil
			}
		}
	}

	// Embedding models cannot answer questions
	var candidates []ModelInfo
	for _, m := range models {
		if !strings.Contains(m.Name, "embed") {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no generation models available")
	}

	// Largest model is usually the strongest
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Size > candidates[j].Size
	})
	return candidates[0].Name, nil
}
