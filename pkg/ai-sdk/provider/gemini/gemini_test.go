package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageMimeType(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{url: "https://example.com/a.png", expected: "image/png"},
		{url: "https://example.com/a.gif?size=large", expected: "image/gif"},
		{url: "https://example.com/photo", expected: "image/jpeg"},
		{url: "https://example.com/doc.pdf", expected: "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, imageMimeType(tt.url))
		})
	}
}

func TestProvider_CompleteWithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"), r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "Grounded "}, {"text": "answer"}]},
				"finishReason": "STOP",
				"groundingMetadata": {"groundingChunks": [{"web": {"uri": "https://go.dev", "title": "go.dev"}}]}
			}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 2, "totalTokenCount": 10}
		}`))
	}))
	defer server.Close()

	provider, err := New(context.Background(), Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := provider.CompleteWithTools(context.Background(), domain.CompletionRequest{
		Prompt: "What is Go?",
		Model:  "gemini-2.5-flash",
	}, domain.ToolOptions{WebSearch: true})
	require.NoError(t, err)

	assert.Equal(t, "Grounded answer", resp.Text)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, []domain.Citation{{URL: "https://go.dev", Title: "go.dev"}}, resp.Citations)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}
