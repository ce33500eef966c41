package llm

import (
	"context"
	"sync"
)

type mockEmbedder struct {
	name     string
	mu       sync.Mutex
	errs     []error // consumed one per call, nil entries succeed
	dim      int
	calls    int
	lastTask TaskType
}

func (m *mockEmbedder) Name() string  { return m.name }
func (m *mockEmbedder) Model() string { return m.name + "-model" }

func (m *mockEmbedder) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastTask = task
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.dim)
	}
	return out, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockGenerator struct {
	name  string
	mu    sync.Mutex
	errs  []error
	calls int
	block chan struct{}
}

func (m *mockGenerator) Name() string  { return m.name }
func (m *mockGenerator) Model() string { return m.name + "-model" }

func (m *mockGenerator) Generate(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Response{Content: "ok from " + m.name}, nil
}
