package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/flowbaker/autoflow/pkg/domain"
)

// Anthropic requires max_tokens on every request.
const defaultMaxTokens = 4096

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Provider struct {
	client anthropic.Client
}

func New(config Config) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		client: anthropic.NewClient(opts...),
	}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	return p.create(ctx, req, nil)
}

func (p *Provider) CompleteWithTools(ctx context.Context, req domain.CompletionRequest, tools domain.ToolOptions) (domain.CompletionResponse, error) {
	if tools.FileSearch {
		return domain.CompletionResponse{}, fmt.Errorf("%w: file search on anthropic", domain.ErrCapabilityNotSupported)
	}

	var toolParams []anthropic.ToolUnionParam
	if tools.WebSearch {
		toolParams = append(toolParams, anthropic.ToolUnionParam{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{},
		})
	}

	return p.create(ctx, req, toolParams)
}

func (p *Provider) create(ctx context.Context, req domain.CompletionRequest, tools []anthropic.ToolUnionParam) (domain.CompletionResponse, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)}
	for _, imageURL := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: imageURL}))
	}

	msgReq := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		MaxTokens: defaultMaxTokens,
	}

	if req.Params.MaxTokens > 0 {
		msgReq.MaxTokens = int64(req.Params.MaxTokens)
	}

	if req.Params.SystemPrompt != "" {
		msgReq.System = []anthropic.TextBlockParam{{Text: req.Params.SystemPrompt}}
	}

	if req.Params.Temperature != nil {
		msgReq.Temperature = anthropic.Float(*req.Params.Temperature)
	}

	if req.Params.TopP != nil {
		msgReq.TopP = anthropic.Float(*req.Params.TopP)
	}

	if len(tools) > 0 {
		msgReq.Tools = tools
	}

	resp, err := p.client.Messages.New(ctx, msgReq)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	var citations []domain.Citation

	seen := map[string]bool{}

	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}

		text.WriteString(block.Text)

		for _, citation := range block.Citations {
			if citation.URL == "" || seen[citation.URL] {
				continue
			}

			seen[citation.URL] = true
			citations = append(citations, domain.Citation{URL: citation.URL, Title: citation.Title})
		}
	}

	return domain.CompletionResponse{
		Text:      text.String(),
		Provider:  p.Name(),
		Model:     string(resp.Model),
		Citations: citations,
		Usage: &domain.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}
