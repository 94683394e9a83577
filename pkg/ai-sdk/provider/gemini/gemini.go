package gemini

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"google.golang.org/genai"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Provider struct {
	client *genai.Client
}

func New(ctx context.Context, config Config) (*Provider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: config.Timeout},
	}

	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Provider{
		client: client,
	}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	return p.generate(ctx, req, nil)
}

// CompleteWithTools grounds the answer with Google Search.
func (p *Provider) CompleteWithTools(ctx context.Context, req domain.CompletionRequest, tools domain.ToolOptions) (domain.CompletionResponse, error) {
	if tools.FileSearch {
		return domain.CompletionResponse{}, fmt.Errorf("%w: file search on gemini", domain.ErrCapabilityNotSupported)
	}

	var genaiTools []*genai.Tool
	if tools.WebSearch {
		genaiTools = append(genaiTools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}

	return p.generate(ctx, req, genaiTools)
}

func (p *Provider) generate(ctx context.Context, req domain.CompletionRequest, tools []*genai.Tool) (domain.CompletionResponse, error) {
	config := &genai.GenerateContentConfig{
		Tools: tools,
	}

	if req.Params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.Params.MaxTokens)
	}

	if req.Params.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Params.Temperature))
	}

	if req.Params.TopP != nil {
		config.TopP = genai.Ptr(float32(*req.Params.TopP))
	}

	if req.Params.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.Params.SystemPrompt)},
		}
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, imageURL := range req.Images {
		parts = append(parts, genai.NewPartFromURI(imageURL, imageMimeType(imageURL)))
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("gemini api error: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return domain.CompletionResponse{}, fmt.Errorf("gemini returned no candidates")
	}

	candidate := resp.Candidates[0]

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	response := domain.CompletionResponse{
		Text:     text.String(),
		Provider: p.Name(),
		Model:    req.Model,
	}

	if resp.UsageMetadata != nil {
		response.Usage = &domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil {
				continue
			}

			response.Citations = append(response.Citations, domain.Citation{URL: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}

	return response, nil
}

func imageMimeType(imageURL string) string {
	if mimeType := mime.TypeByExtension(path.Ext(strings.SplitN(imageURL, "?", 2)[0])); strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}

	return "image/jpeg"
}
