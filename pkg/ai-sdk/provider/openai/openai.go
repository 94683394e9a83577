package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	// Name is reported in usage records, "openai" or "openrouter".
	Name    string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider talks to OpenAI compatible chat completion APIs. OpenRouter is
// the same provider pointed at a different base URL.
type Provider struct {
	name       string
	apiKey     string
	baseURL    string
	client     *openai.Client
	httpClient *http.Client
}

func New(config Config) *Provider {
	name := config.Name
	if name == "" {
		name = "openai"
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := &http.Client{Timeout: config.Timeout}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = httpClient

	return &Provider{
		name:       name,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		client:     openai.NewClientWithConfig(clientConfig),
		httpClient: httpClient,
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessages(req),
	}

	applyParams(&chatReq, req.Model, req.Params)

	log.Debug().Str("provider", p.name).Str("model", req.Model).Msg("Sending chat completion")

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("%s api error: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return domain.CompletionResponse{}, fmt.Errorf("%s returned no choices", p.name)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	return domain.CompletionResponse{
		Text:     resp.Choices[0].Message.Content,
		Provider: p.name,
		Model:    model,
		Usage: &domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CompleteWithTools runs hosted web and file search. OpenAI exposes them
// through the Responses API; OpenRouter through its ":online" model suffix.
func (p *Provider) CompleteWithTools(ctx context.Context, req domain.CompletionRequest, tools domain.ToolOptions) (domain.CompletionResponse, error) {
	if p.name == "openrouter" {
		if tools.FileSearch {
			return domain.CompletionResponse{}, fmt.Errorf("%w: file search on openrouter", domain.ErrCapabilityNotSupported)
		}

		if tools.WebSearch && !strings.HasSuffix(req.Model, ":online") {
			req.Model += ":online"
		}

		return p.Complete(ctx, req)
	}

	return p.createResponse(ctx, req, tools)
}

func convertMessages(req domain.CompletionRequest) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage

	if req.Params.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Params.SystemPrompt,
		})
	}

	if len(req.Images) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	}}

	for _, imageURL := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    imageURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func applyParams(chatReq *openai.ChatCompletionRequest, model string, params domain.ModelParams) {
	if params.Temperature != nil {
		chatReq.Temperature = float32(*params.Temperature)
	}

	if params.TopP != nil {
		chatReq.TopP = float32(*params.TopP)
	}

	if params.FrequencyPenalty != nil {
		chatReq.FrequencyPenalty = float32(*params.FrequencyPenalty)
	}

	if params.PresencePenalty != nil {
		chatReq.PresencePenalty = float32(*params.PresencePenalty)
	}

	if params.MaxTokens > 0 {
		if isMaxCompletionTokensModel(model) {
			chatReq.MaxCompletionTokens = params.MaxTokens
		} else {
			chatReq.MaxTokens = params.MaxTokens
		}
	}
}

var maxCompletionTokensPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

func isMaxCompletionTokensModel(model string) bool {
	for _, prefix := range maxCompletionTokensPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}

	return false
}
