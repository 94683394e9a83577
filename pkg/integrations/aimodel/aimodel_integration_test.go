package aimodel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/expressions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	resp     domain.CompletionResponse
	err      error
	received domain.CompletionRequest
	tools    *domain.ToolOptions
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	p.received = req

	return p.resp, p.err
}

type fakeToolProvider struct {
	fakeProvider
}

func (p *fakeToolProvider) CompleteWithTools(ctx context.Context, req domain.CompletionRequest, tools domain.ToolOptions) (domain.CompletionResponse, error) {
	p.received = req
	p.tools = &tools

	return p.resp, p.err
}

type fakeSelector struct {
	provider domain.ModelProvider
	model    string
}

func (s *fakeSelector) Select(model string) (domain.ModelProvider, error) {
	s.model = model
	if s.provider == nil {
		return nil, domain.ErrProviderNotConfigured
	}

	return s.provider, nil
}

type recordingUsage struct {
	records []domain.UsageRecord
}

func (u *recordingUsage) RecordUsage(ctx context.Context, record domain.UsageRecord) error {
	u.records = append(u.records, record)

	return nil
}

func TestAIModelIntegration_Execute(t *testing.T) {
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	resolver := expressions.NewTemplateResolver(expressions.DefaultTemplateResolverOptions())

	outputs := domain.NewNodeOutputs()
	outputs.Set("t", domain.NewNodeResult(domain.NodeTypeTrigger, map[string]any{"topic": "Go generics", "image": "https://img.example/1.png"}))

	provider := &fakeProvider{resp: domain.CompletionResponse{
		Text:     "  Generics landed in Go 1.18.  ",
		Provider: "openai",
		Model:    "gpt-4o",
		Usage:    &domain.Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
	}}
	selector := &fakeSelector{provider: provider}
	usage := &recordingUsage{}

	integration := NewAIModelIntegration(AIModelIntegrationDependencies{Models: selector, Usage: usage, Clock: mockClock})

	result, err := integration.Execute(context.Background(), domain.NodeInput{
		Node: domain.Node{ID: "ai", Type: domain.NodeTypeAIModel, Data: map[string]any{
			"model":        "gpt-4o",
			"content":      "Write about [[topic] from t]",
			"systemPrompt": "You are concise.",
			"imageUrls":    []any{"[[image] from t]"},
			"temperature":  0.2,
			"maxTokens":    "300",
		}},
		Outputs:          outputs,
		Resolver:         resolver,
		ExecutionContext: domain.ExecutionContext{ExecutionID: "exec-1", WorkflowID: "wf-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Generics landed in Go 1.18.", result.Content)
	assert.Equal(t, "gpt-4o", selector.model)
	assert.Equal(t, "Write about Go generics", provider.received.Prompt)
	assert.Equal(t, []string{"https://img.example/1.png"}, provider.received.Images)
	assert.Equal(t, "You are concise.", provider.received.Params.SystemPrompt)
	require.NotNil(t, provider.received.Params.Temperature)
	assert.Equal(t, 0.2, *provider.received.Params.Temperature)
	assert.Equal(t, 300, provider.received.Params.MaxTokens)
	assert.Nil(t, provider.received.Params.TopP)

	require.Len(t, usage.records, 1)
	assert.Equal(t, domain.UsageRecord{
		ExecutionID:      "exec-1",
		WorkflowID:       "wf-1",
		NodeID:           "ai",
		Provider:         "openai",
		Model:            "gpt-4o",
		PromptTokens:     12,
		CompletionTokens: 8,
		RecordedAt:       mockClock.Now(),
	}, usage.records[0])
}

func TestAIModelIntegration_Tools(t *testing.T) {
	tests := []struct {
		name        string
		provider    domain.ModelProvider
		expectedErr error
	}{
		{
			name: "tool provider",
			provider: &fakeToolProvider{fakeProvider{resp: domain.CompletionResponse{
				Text:      "Answer",
				Citations: []domain.Citation{{URL: "https://go.dev", Title: "Go"}},
			}}},
		},
		{
			name:        "provider without tools",
			provider:    &fakeProvider{},
			expectedErr: domain.ErrCapabilityNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integration := NewAIModelIntegration(AIModelIntegrationDependencies{Models: &fakeSelector{provider: tt.provider}})

			result, err := integration.Execute(context.Background(), domain.NodeInput{
				Node: domain.Node{ID: "ai", Type: domain.NodeTypeAIModel, Data: map[string]any{
					"content":        "What is new in Go?",
					"webSearch":      true,
					"vectorStoreIds": "vs_1, vs_2",
				}},
			})

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "Answer\n\nSources:\n1. Go - https://go.dev", result.Content)

			toolProvider := tt.provider.(*fakeToolProvider)
			require.NotNil(t, toolProvider.tools)
			assert.True(t, toolProvider.tools.WebSearch)
			assert.Equal(t, []string{"vs_1", "vs_2"}, toolProvider.tools.VectorStoreIDs)
		})
	}
}

func TestAIModelIntegration_Errors(t *testing.T) {
	tests := []struct {
		name     string
		selector *fakeSelector
		data     map[string]any
	}{
		{name: "empty prompt", selector: &fakeSelector{provider: &fakeProvider{}}, data: map[string]any{}},
		{name: "no provider", selector: &fakeSelector{}, data: map[string]any{"content": "hi"}},
		{name: "provider failure", selector: &fakeSelector{provider: &fakeProvider{err: errors.New("boom")}}, data: map[string]any{"content": "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integration := NewAIModelIntegration(AIModelIntegrationDependencies{Models: tt.selector})

			_, err := integration.Execute(context.Background(), domain.NodeInput{
				Node: domain.Node{ID: "ai", Type: domain.NodeTypeAIModel, Data: tt.data},
			})

			var nodeErr *domain.NodeError
			assert.ErrorAs(t, err, &nodeErr)
		})
	}
}

func TestAIModelIntegration_HTMLOutput(t *testing.T) {
	provider := &fakeProvider{resp: domain.CompletionResponse{Text: "# Title\n\nSome **bold** text"}}
	integration := NewAIModelIntegration(AIModelIntegrationDependencies{Models: &fakeSelector{provider: provider}})

	result, err := integration.Execute(context.Background(), domain.NodeInput{
		Node: domain.Node{ID: "ai", Type: domain.NodeTypeAIModel, Data: map[string]any{
			"content":      "Write",
			"outputFormat": "html",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "<h1>Title</h1>\n<p>Some <strong>bold</strong> text</p>", result.Content)
}

func TestFormatText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		citations []domain.Citation
		expected  string
	}{
		{name: "plain", text: " hello ", expected: "hello"},
		{name: "fenced block", text: "```markdown\n# Hi\n```", expected: "# Hi"},
		{name: "inner fences kept", text: "```go\na\n```\ntext\n```go\nb\n```", expected: "```go\na\n```\ntext\n```go\nb\n```"},
		{
			name:      "citations without titles",
			text:      "Answer",
			citations: []domain.Citation{{URL: "https://a.example"}, {URL: "https://b.example", Title: "B"}},
			expected:  "Answer\n\nSources:\n1. https://a.example\n2. B - https://b.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatText(tt.text, tt.citations))
		})
	}
}
