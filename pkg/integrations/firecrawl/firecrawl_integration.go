package firecrawl

import (
	"context"

	"github.com/flowbaker/autoflow/pkg/domain"
)

type FirecrawlIntegrationDependencies struct {
	Scraper domain.Scraper
}

type FirecrawlIntegration struct {
	scraper domain.Scraper
}

func NewFirecrawlIntegration(deps FirecrawlIntegrationDependencies) *FirecrawlIntegration {
	return &FirecrawlIntegration{
		scraper: deps.Scraper,
	}
}

// Execute wraps the scrape response as {content: response}, so references
// like [[extract.price] from node] read content.content.data.extract.
func (i *FirecrawlIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	url := input.ResolveString("url")
	if url == "" {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "URL is required")
	}

	if i.scraper == nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, domain.ErrProviderNotConfigured, "Firecrawl is not configured")
	}

	resp, err := i.scraper.Scrape(ctx, domain.ScrapeRequest{
		URL:           url,
		Formats:       input.Node.StringSlice("formats"),
		ExtractPrompt: input.ResolveString("extractPrompt"),
		ExtractSchema: input.Node.Map("extractSchema"),
		OnlyMainText:  input.Node.Bool("onlyMainContent"),
	})
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Failed to scrape URL")
	}

	return domain.NewNodeResult(domain.NodeTypeFirecrawl, map[string]any{"content": resp}), nil
}
