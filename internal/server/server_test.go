package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perspectives-ai/rag/config"
	"github.com/perspectives-ai/rag/internal/app"
	"github.com/perspectives-ai/rag/internal/documents"
	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/logging"
)

func newTestServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	cfg := config.Default()
	cfg.Embeddings.Tiers = []config.ProviderSettings{{Provider: "local", Dimensions: 128}}
	cfg.Generation.Tiers = nil

	a, err := app.New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Processor.Ingest(context.Background(), documents.Source{
		Filename: "outlook.txt",
		Pages:    []string{"Provincial exports rose eight percent, led by energy and agriculture."},
	}, false)
	require.NoError(t, err)

	return New(a, nil), a
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Handler().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestQuery_Answers(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := do(t, s, http.MethodPost, "/api/chat/query", `{"query":"Provincial exports rose","max_results":3}`)
	require.Equal(t, http.StatusOK, code, string(body))

	var answer domain.Answer
	require.NoError(t, json.Unmarshal(body, &answer))
	assert.NotEmpty(t, answer.Text)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "outlook.txt", answer.Sources[0].Filename)
	assert.Equal(t, 1, answer.Sources[0].Page)
	assert.Positive(t, answer.Confidence)
}

func TestQuery_DefaultsMaxResults(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := do(t, s, http.MethodPost, "/api/chat/query", `{"query":"Provincial exports rose"}`)
	assert.Equal(t, http.StatusOK, code, string(body))
}

func TestQuery_RejectsInvalidInput(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"blank query", `{"query":"   ","max_results":3}`},
		{"zero results", `{"query":"exports","max_results":0}`},
		{"negative results", `{"query":"exports","max_results":-2}`},
		{"malformed json", `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, s, http.MethodPost, "/api/chat/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)

			var payload map[string]string
			require.NoError(t, json.Unmarshal(body, &payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestDocuments(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/api/documents", "/api/chat/documents"} {
		code, body := do(t, s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, code)

		var resp DocumentsResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Documents, 1)
		assert.True(t, resp.Documents[0].Processed)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/chat/status", "")
	require.Equal(t, http.StatusOK, code)

	var st app.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, config.BackendMemory, st.Index)
	assert.Equal(t, []app.Tier{{Provider: "local", Model: "local-hash-128"}}, st.EmbeddingTiers)
	assert.Equal(t, 1, st.Documents)
	require.Len(t, st.Spaces, 1)
	assert.Equal(t, 128, st.Spaces[0].Space.Dimension)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"healthy"`)
}
