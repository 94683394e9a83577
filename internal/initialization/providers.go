package initialization

import (
	"context"
	"fmt"

	"github.com/flowbaker/autoflow/internal/managers"
	"github.com/flowbaker/autoflow/pkg/ai-sdk/provider"
	"github.com/flowbaker/autoflow/pkg/ai-sdk/provider/anthropic"
	"github.com/flowbaker/autoflow/pkg/ai-sdk/provider/gemini"
	"github.com/flowbaker/autoflow/pkg/ai-sdk/provider/openai"
	"github.com/flowbaker/autoflow/pkg/clients/feeds"
	"github.com/flowbaker/autoflow/pkg/clients/firecrawl"
	"github.com/flowbaker/autoflow/pkg/clients/google"
	"github.com/flowbaker/autoflow/pkg/clients/perplexity"
	"github.com/flowbaker/autoflow/pkg/clients/unsplash"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

// providerSet holds the external services. Unconfigured services stay nil
// interfaces so the executors report them as not configured.
type providerSet struct {
	Models  domain.ModelSelector
	Search  domain.SearchProvider
	Images  domain.ImageSearchProvider
	Scraper domain.Scraper
	Feeds   domain.FeedFetcher
	Google  managers.GoogleWorkspace
}

func buildProviders(ctx context.Context, config domain.EngineConfig) (providerSet, error) {
	providers := config.Providers
	modelTimeout := config.Engine.ModelTimeout
	httpTimeout := config.Engine.HTTPTimeout

	routerDeps := provider.RouterDependencies{}

	if providers.OpenAI.APIKey != "" {
		routerDeps.OpenAI = openai.New(openai.Config{
			Name:    "openai",
			APIKey:  providers.OpenAI.APIKey,
			BaseURL: providers.OpenAI.BaseURL,
			Timeout: modelTimeout,
		})
	}

	if providers.OpenRouter.APIKey != "" {
		routerDeps.OpenRouter = openai.New(openai.Config{
			Name:    "openrouter",
			APIKey:  providers.OpenRouter.APIKey,
			BaseURL: providers.OpenRouter.BaseURL,
			Timeout: modelTimeout,
		})
	}

	if providers.Anthropic.APIKey != "" {
		routerDeps.Anthropic = anthropic.New(anthropic.Config{
			APIKey:  providers.Anthropic.APIKey,
			BaseURL: providers.Anthropic.BaseURL,
			Timeout: modelTimeout,
		})
	}

	if providers.Gemini.APIKey != "" {
		geminiProvider, err := gemini.New(ctx, gemini.Config{
			APIKey:  providers.Gemini.APIKey,
			BaseURL: providers.Gemini.BaseURL,
			Timeout: modelTimeout,
		})
		if err != nil {
			return providerSet{}, fmt.Errorf("failed to create gemini provider: %w", err)
		}

		routerDeps.Gemini = geminiProvider
	}

	set := providerSet{
		Models: provider.NewRouter(routerDeps),
		Feeds:  feeds.New(feeds.ClientOpts{Timeout: httpTimeout}),
	}

	if providers.Perplexity.APIKey != "" {
		set.Search = perplexity.New(perplexity.ClientOpts{
			APIKey:  providers.Perplexity.APIKey,
			BaseURL: providers.Perplexity.BaseURL,
			Timeout: modelTimeout,
		})
	}

	if providers.Unsplash.APIKey != "" {
		set.Images = unsplash.New(unsplash.ClientOpts{
			AccessKey: providers.Unsplash.APIKey,
			BaseURL:   providers.Unsplash.BaseURL,
			Timeout:   httpTimeout,
		})
	}

	if providers.Firecrawl.APIKey != "" {
		set.Scraper = firecrawl.New(firecrawl.ClientOpts{
			APIKey:  providers.Firecrawl.APIKey,
			BaseURL: providers.Firecrawl.BaseURL,
			Timeout: httpTimeout,
		})
	}

	if config.Google.CredentialsFile != "" {
		googleClient, err := google.New(ctx, google.ClientOpts{
			CredentialsFile: config.Google.CredentialsFile,
		})
		if err != nil {
			return providerSet{}, err
		}

		set.Google = googleClient
	}

	log.Info().
		Bool("openai", routerDeps.OpenAI != nil).
		Bool("openrouter", routerDeps.OpenRouter != nil).
		Bool("anthropic", routerDeps.Anthropic != nil).
		Bool("gemini", routerDeps.Gemini != nil).
		Bool("perplexity", set.Search != nil).
		Bool("unsplash", set.Images != nil).
		Bool("firecrawl", set.Scraper != nil).
		Bool("google", set.Google != nil).
		Msg("External providers configured")

	return set, nil
}
