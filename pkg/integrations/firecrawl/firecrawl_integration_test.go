package firecrawl

import (
	"context"
	"testing"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/expressions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	received domain.ScrapeRequest
}

func (s *stubScraper) Scrape(ctx context.Context, req domain.ScrapeRequest) (map[string]any, error) {
	s.received = req

	return map[string]any{
		"success": true,
		"data": map[string]any{
			"markdown": "# Widget",
			"extract":  map[string]any{"product": map[string]any{"price": "9.99"}},
		},
	}, nil
}

func TestFirecrawlIntegration_Execute(t *testing.T) {
	resolver := expressions.NewTemplateResolver(expressions.DefaultTemplateResolverOptions())
	scraper := &stubScraper{}
	integration := NewFirecrawlIntegration(FirecrawlIntegrationDependencies{Scraper: scraper})

	outputs := domain.NewNodeOutputs()
	outputs.Set("t", domain.NewNodeResult(domain.NodeTypeTrigger, map[string]any{"url": "https://shop.example/widget"}))

	result, err := integration.Execute(context.Background(), domain.NodeInput{
		Node: domain.Node{ID: "fc", Type: domain.NodeTypeFirecrawl, Data: map[string]any{
			"url":           "[[url] from t]",
			"extractPrompt": "Find the price",
		}},
		Outputs:  outputs,
		Resolver: resolver,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example/widget", scraper.received.URL)
	assert.Equal(t, "Find the price", scraper.received.ExtractPrompt)

	outputs.Set("fc", result)
	assert.Equal(t, "9.99", resolver.Resolve("[[extract.product.price] from fc]", outputs, domain.HostVariables{}))
}

func TestFirecrawlIntegration_MissingURL(t *testing.T) {
	integration := NewFirecrawlIntegration(FirecrawlIntegrationDependencies{Scraper: &stubScraper{}})

	_, err := integration.Execute(context.Background(), domain.NodeInput{
		Node: domain.Node{ID: "fc", Type: domain.NodeTypeFirecrawl, Data: map[string]any{}},
	})

	var nodeErr *domain.NodeError
	assert.ErrorAs(t, err, &nodeErr)
}
