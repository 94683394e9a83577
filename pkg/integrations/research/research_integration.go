package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

const (
	defaultModel   = "sonar"
	maxTemperature = 2.0
)

type ResearchIntegrationDependencies struct {
	Search domain.SearchProvider
	Usage  domain.UsageRecorder
	Clock  clock.Clock
}

type ResearchIntegration struct {
	search domain.SearchProvider
	usage  domain.UsageRecorder
	clock  clock.Clock
}

func NewResearchIntegration(deps ResearchIntegrationDependencies) *ResearchIntegration {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &ResearchIntegration{
		search: deps.Search,
		usage:  deps.Usage,
		clock:  deps.Clock,
	}
}

func (i *ResearchIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	nodeID := input.Node.ID

	req, err := BuildSearchRequest(input)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Invalid research parameters")
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return domain.NodeResult{}, domain.NewNodeError(nodeID, "Research prompt is required")
	}

	if i.search == nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, domain.ErrProviderNotConfigured, "Research provider is not configured")
	}

	resp, err := i.search.Query(ctx, req)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Research request failed")
	}

	if i.usage != nil && resp.Usage != nil {
		model := resp.Model
		if model == "" {
			model = req.Model
		}

		err := i.usage.RecordUsage(ctx, domain.UsageRecord{
			ExecutionID:      input.ExecutionContext.ExecutionID,
			WorkflowID:       input.ExecutionContext.WorkflowID,
			NodeID:           nodeID,
			Provider:         "perplexity",
			Model:            model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			RecordedAt:       i.clock.Now(),
		})
		if err != nil {
			log.Warn().Err(err).Str("node_id", nodeID).Msg("Failed to record token usage")
		}
	}

	citations := make([]any, 0, len(resp.Citations))
	for _, citation := range resp.Citations {
		entry := map[string]any{"url": citation.URL}
		if citation.Title != "" {
			entry["title"] = citation.Title
		}
		citations = append(citations, entry)
	}

	return domain.NewNodeResult(domain.NodeTypeResearch, map[string]any{
		"text":      strings.TrimSpace(resp.Text),
		"citations": citations,
	}), nil
}

// BuildSearchRequest reads the provider parameters from the node. Only one of
// the two penalties is sent: frequency when it is non-zero, otherwise
// presence.
func BuildSearchRequest(input domain.NodeInput) (domain.SearchRequest, error) {
	node := input.Node

	prompt := input.ResolveString("content")
	if strings.TrimSpace(prompt) == "" {
		prompt = input.CombinedInput("\n\n")
	}

	req := domain.SearchRequest{
		Prompt:              prompt,
		Model:               node.StringOr("model", defaultModel),
		SystemPrompt:        input.ResolveString("systemPrompt"),
		MaxTokens:           node.Int("maxTokens", 0),
		SearchRecencyFilter: node.String("searchRecencyFilter"),
		SearchDomainFilter:  node.StringSlice("searchDomainFilter"),
	}

	if temperature, ok := node.Float("temperature"); ok {
		if temperature < 0 || temperature >= maxTemperature {
			return domain.SearchRequest{}, fmt.Errorf("temperature must be between 0 and 2, got %v", temperature)
		}
		req.Temperature = &temperature
	}

	if topP, ok := node.Float("topP"); ok {
		req.TopP = &topP
	}

	if frequency, ok := node.Float("frequencyPenalty"); ok && frequency != 0 {
		req.FrequencyPenalty = &frequency
	} else if presence, ok := node.Float("presencePenalty"); ok && presence != 0 {
		req.PresencePenalty = &presence
	}

	return req, nil
}
