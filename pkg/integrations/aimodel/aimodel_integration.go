package aimodel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
)

const (
	defaultModel = "gpt-4o-mini"

	OutputFormatText = "text"
	OutputFormatHTML = "html"
)

type AIModelIntegrationDependencies struct {
	Models domain.ModelSelector
	Usage  domain.UsageRecorder
	Clock  clock.Clock
}

type AIModelIntegration struct {
	models   domain.ModelSelector
	usage    domain.UsageRecorder
	clock    clock.Clock
	markdown goldmark.Markdown
}

func NewAIModelIntegration(deps AIModelIntegrationDependencies) *AIModelIntegration {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &AIModelIntegration{
		models:   deps.Models,
		usage:    deps.Usage,
		clock:    deps.Clock,
		markdown: goldmark.New(),
	}
}

func (i *AIModelIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	nodeID := input.Node.ID

	prompt := input.ResolveString("content")
	if strings.TrimSpace(prompt) == "" {
		prompt = input.CombinedInput("\n\n")
	}

	if strings.TrimSpace(prompt) == "" {
		return domain.NodeResult{}, domain.NewNodeError(nodeID, "Prompt is required")
	}

	model := input.Node.StringOr("model", defaultModel)

	provider, err := i.models.Select(model)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, fmt.Sprintf("No provider available for model %s", model))
	}

	req := domain.CompletionRequest{
		Prompt: prompt,
		Model:  model,
		Images: i.imageURLs(input),
		Params: ModelParamsFromNode(input),
	}

	tools := ToolOptionsFromNode(input.Node)

	var resp domain.CompletionResponse

	if tools.Enabled() {
		toolProvider, ok := provider.(domain.ToolModelProvider)
		if !ok {
			return domain.NodeResult{}, domain.WrapNodeError(nodeID, domain.ErrCapabilityNotSupported, fmt.Sprintf("Provider %s cannot run tools", provider.Name()))
		}

		resp, err = toolProvider.CompleteWithTools(ctx, req, tools)
	} else {
		resp, err = provider.Complete(ctx, req)
	}

	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "AI model request failed")
	}

	i.recordUsage(ctx, input, resp)

	text := FormatText(resp.Text, resp.Citations)

	if input.Node.StringOr("outputFormat", OutputFormatText) == OutputFormatHTML {
		var buf bytes.Buffer
		if err := i.markdown.Convert([]byte(text), &buf); err != nil {
			return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Failed to render model output")
		}

		text = strings.TrimSpace(buf.String())
	}

	return domain.NewNodeResult(domain.NodeTypeAIModel, text), nil
}

func (i *AIModelIntegration) imageURLs(input domain.NodeInput) []string {
	var images []string

	for _, raw := range input.Node.StringSlice("imageUrls") {
		for _, resolved := range strings.FieldsFunc(input.Resolve(raw), func(r rune) bool { return r == ',' || r == '\n' }) {
			if url := strings.TrimSpace(resolved); url != "" {
				images = append(images, url)
			}
		}
	}

	return images
}

func (i *AIModelIntegration) recordUsage(ctx context.Context, input domain.NodeInput, resp domain.CompletionResponse) {
	if i.usage == nil || resp.Usage == nil {
		return
	}

	err := i.usage.RecordUsage(ctx, domain.UsageRecord{
		ExecutionID:      input.ExecutionContext.ExecutionID,
		WorkflowID:       input.ExecutionContext.WorkflowID,
		NodeID:           input.Node.ID,
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		RecordedAt:       i.clock.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("node_id", input.Node.ID).Msg("Failed to record token usage")
	}
}

// ModelParamsFromNode reads the sampling parameters. Unset values stay nil so
// providers keep their own defaults.
func ModelParamsFromNode(input domain.NodeInput) domain.ModelParams {
	params := domain.ModelParams{
		SystemPrompt: input.ResolveString("systemPrompt"),
		MaxTokens:    input.Node.Int("maxTokens", 0),
	}

	params.Temperature = floatPtr(input.Node, "temperature")
	params.TopP = floatPtr(input.Node, "topP")
	params.FrequencyPenalty = floatPtr(input.Node, "frequencyPenalty")
	params.PresencePenalty = floatPtr(input.Node, "presencePenalty")

	return params
}

func ToolOptionsFromNode(node domain.Node) domain.ToolOptions {
	return domain.ToolOptions{
		WebSearch:         node.Bool("webSearch"),
		FileSearch:        node.Bool("fileSearch"),
		VectorStoreIDs:    node.StringSlice("vectorStoreIds"),
		SearchContextSize: node.String("searchContextSize"),
	}
}

// FormatText turns raw model output into display text: a fence wrapping the
// whole answer is removed and citations are listed under "Sources:".
func FormatText(text string, citations []domain.Citation) string {
	text = stripOuterFence(strings.TrimSpace(text))

	if len(citations) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nSources:")

	for n, citation := range citations {
		label := citation.Title
		if label == "" {
			label = citation.URL
		}

		if label == citation.URL {
			fmt.Fprintf(&b, "\n%d. %s", n+1, citation.URL)
		} else {
			fmt.Fprintf(&b, "\n%d. %s - %s", n+1, label, citation.URL)
		}
	}

	return b.String()
}

func stripOuterFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	body := strings.TrimSuffix(text, "```")

	firstLine, rest, found := strings.Cut(body, "\n")
	if !found || strings.Contains(rest, "```") {
		return text
	}

	// Only language tags may follow the opening fence.
	if strings.ContainsAny(strings.TrimPrefix(firstLine, "```"), " \t") {
		return text
	}

	return strings.TrimSpace(rest)
}

func floatPtr(node domain.Node, key string) *float64 {
	value, ok := node.Float(key)
	if !ok {
		return nil
	}

	return &value
}
