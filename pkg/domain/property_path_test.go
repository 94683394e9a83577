package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func TestParsePropertyPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected []PropertyPathSegment
		wantErr  bool
	}{
		{
			name:     "simple property",
			path:     "message",
			expected: []PropertyPathSegment{{Key: "message"}},
		},
		{
			name:     "nested with root marker",
			path:     "$.data.user",
			expected: []PropertyPathSegment{{Key: "data"}, {Key: "user"}},
		},
		{
			name:     "array index",
			path:     "items[2].name",
			expected: []PropertyPathSegment{{Key: "items"}, {Index: intPtr(2)}, {Key: "name"}},
		},
		{
			name: "filter with dotted value",
			path: "hosts[?name=api.example.com].port",
			expected: []PropertyPathSegment{
				{Key: "hosts"},
				{FilterField: "name", FilterValue: "api.example.com"},
				{Key: "port"},
			},
		},
		{
			name: "jsonpath style filter",
			path: "items[?(@.status=='active')]",
			expected: []PropertyPathSegment{
				{Key: "items"},
				{FilterField: "status", FilterValue: "active"},
			},
		},
		{
			name:     "empty path",
			path:     "",
			expected: []PropertyPathSegment{},
		},
		{
			name:    "double dot",
			path:    "data..user",
			wantErr: true,
		},
		{
			name:    "unsupported bracket",
			path:    "items[abc]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := ParsePropertyPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, segments)
		})
	}
}

func TestExtractPropertyPath(t *testing.T) {
	var body any
	require.NoError(t, json.Unmarshal([]byte(`{
		"data": {
			"users": [
				{"name": "ada", "status": "active", "id": 1},
				{"name": "bob", "status": "disabled", "id": 2},
				{"name": "cy", "status": "active", "id": 3}
			]
		},
		"count": 3
	}`), &body))

	tests := []struct {
		name     string
		path     string
		expected any
		found    bool
	}{
		{name: "scalar", path: "count", expected: float64(3), found: true},
		{name: "bracket index", path: "data.users[1].name", expected: "bob", found: true},
		{name: "dotted index", path: "data.users.0.name", expected: "ada", found: true},
		{name: "filter then field", path: "data.users[?status=active].name", expected: []any{"ada", "cy"}, found: true},
		{name: "filter numeric value", path: "data.users[?id=2].name", expected: []any{"bob"}, found: true},
		{name: "index out of range", path: "data.users[9]", found: false},
		{name: "missing key", path: "data.groups", found: false},
		{name: "filter without match", path: "data.users[?status=gone]", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, found := ExtractPropertyPath(body, tt.path)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.expected, value)
			}
		})
	}
}
