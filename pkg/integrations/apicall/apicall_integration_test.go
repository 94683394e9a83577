package apicall

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPICallIntegration_Retries(t *testing.T) {
	tests := []struct {
		name             string
		statuses         []int
		retryCount       int
		expectedAttempts int32
		expectErr        bool
	}{
		{name: "success first try", statuses: []int{200}, retryCount: 3, expectedAttempts: 1},
		{name: "retries server errors", statuses: []int{503, 500, 200}, retryCount: 3, expectedAttempts: 3},
		{name: "gives up after retry count", statuses: []int{500, 500, 500, 500}, retryCount: 2, expectedAttempts: 3, expectErr: true},
		{name: "client errors are not retried", statuses: []int{404, 200}, retryCount: 3, expectedAttempts: 1, expectErr: true},
		{name: "no retries by default", statuses: []int{502, 200}, expectedAttempts: 1, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				status := tt.statuses[int(n)-1]
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"ok": true}`))
			}))
			defer server.Close()

			integration := NewAPICallIntegration(APICallIntegrationDependencies{InitialInterval: time.Millisecond})

			data := map[string]any{"url": server.URL}
			if tt.retryCount > 0 {
				data["retryCount"] = tt.retryCount
			}

			result, err := integration.Execute(context.Background(), domain.NodeInput{
				Node: domain.Node{ID: "api", Type: domain.NodeTypeAPICall, Data: data},
			})

			assert.Equal(t, tt.expectedAttempts, attempts.Load())

			if tt.expectErr {
				var nodeErr *domain.NodeError
				assert.ErrorAs(t, err, &nodeErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, map[string]any{"ok": true}, result.Content)
		})
	}
}

func TestAPICallIntegration_RequestAndExtraction(t *testing.T) {
	var (
		receivedMethod string
		receivedBody   string
		receivedHeader string
		receivedQuery  string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedHeader = r.Header.Get("Content-Type")
		receivedQuery = r.URL.Query().Get("q")
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [{"status": "draft", "id": 1}, {"status": "active", "id": 2}]}`))
	}))
	defer server.Close()

	outputs := domain.NewNodeOutputs()

	tests := []struct {
		name      string
		path      string
		expected  any
		expectErr bool
	}{
		{name: "filter", path: "items[?status=active].id", expected: []any{float64(2)}},
		{name: "index", path: "items[0].status", expected: "draft"},
		{name: "missing", path: "items[5].id", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integration := NewAPICallIntegration(APICallIntegrationDependencies{})

			result, err := integration.Execute(context.Background(), domain.NodeInput{
				Node: domain.Node{ID: "api", Type: domain.NodeTypeAPICall, Data: map[string]any{
					"url":          server.URL,
					"method":       "post",
					"queryParams":  map[string]any{"q": "gophers"},
					"body":         map[string]any{"name": "gopher"},
					"responsePath": tt.path,
				}},
				Outputs: outputs,
			})

			assert.Equal(t, http.MethodPost, receivedMethod)
			assert.Equal(t, "application/json", receivedHeader)
			assert.Equal(t, "gophers", receivedQuery)
			assert.JSONEq(t, `{"name": "gopher"}`, receivedBody)

			if tt.expectErr {
				var nodeErr *domain.NodeError
				assert.ErrorAs(t, err, &nodeErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Content)
		})
	}
}

func TestAPICallIntegration_InvalidURL(t *testing.T) {
	integration := NewAPICallIntegration(APICallIntegrationDependencies{})

	for _, rawURL := range []string{"", "not a url"} {
		_, err := integration.Execute(context.Background(), domain.NodeInput{
			Node: domain.Node{ID: "api", Type: domain.NodeTypeAPICall, Data: map[string]any{"url": rawURL}},
		})

		var nodeErr *domain.NodeError
		assert.ErrorAs(t, err, &nodeErr)
	}
}
