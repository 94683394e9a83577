package initialization

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/integrations/aimodel"
	"github.com/flowbaker/autoflow/pkg/integrations/apicall"
	"github.com/flowbaker/autoflow/pkg/integrations/chat"
	"github.com/flowbaker/autoflow/pkg/integrations/condition"
	"github.com/flowbaker/autoflow/pkg/integrations/firecrawl"
	"github.com/flowbaker/autoflow/pkg/integrations/humaninput"
	"github.com/flowbaker/autoflow/pkg/integrations/output"
	"github.com/flowbaker/autoflow/pkg/integrations/post"
	"github.com/flowbaker/autoflow/pkg/integrations/research"
	"github.com/flowbaker/autoflow/pkg/integrations/rss"
	"github.com/flowbaker/autoflow/pkg/integrations/trigger"
	"github.com/flowbaker/autoflow/pkg/integrations/unsplash"
	"github.com/flowbaker/autoflow/pkg/storage/memory"
	"github.com/rs/zerolog/log"
)

type executorDependencies struct {
	Config     domain.EngineConfig
	Clock      clock.Clock
	HTTPClient *http.Client
	Storage    Storage
	Providers  providerSet
	Usage      domain.UsageRecorder
	Output     *output.OutputIntegration
}

func registerExecutors(selector domain.ExecutorSelector, deps executorDependencies) {
	executors := map[domain.NodeType]domain.NodeExecutor{
		domain.NodeTypeTrigger: trigger.NewTriggerIntegration(trigger.TriggerIntegrationDependencies{
			Feeds:      deps.Providers.Feeds,
			Lock:       deps.Storage,
			RSSLockTTL: deps.Config.Engine.RSSLockTTL,
		}),
		domain.NodeTypeAIModel: aimodel.NewAIModelIntegration(aimodel.AIModelIntegrationDependencies{
			Models: deps.Providers.Models,
			Usage:  deps.Usage,
			Clock:  deps.Clock,
		}),
		domain.NodeTypeOutput: deps.Output,
		// Posts live in the host CMS. The in-process store stands in for it and
		// does not follow the storage driver.
		domain.NodeTypePost: post.NewPostIntegration(post.PostIntegrationDependencies{
			Entities: memory.NewEntityStore(memory.EntityStoreOpts{SiteURL: deps.Config.Site.URL}),
		}),
		domain.NodeTypeResearch: research.NewResearchIntegration(research.ResearchIntegrationDependencies{
			Search: deps.Providers.Search,
			Usage:  deps.Usage,
			Clock:  deps.Clock,
		}),
		domain.NodeTypeUnsplash: unsplash.NewUnsplashIntegration(unsplash.UnsplashIntegrationDependencies{
			Images: deps.Providers.Images,
		}),
		domain.NodeTypeChat: chat.NewChatIntegration(),
		domain.NodeTypeRSS: rss.NewRSSIntegration(rss.RSSIntegrationDependencies{
			Feeds: deps.Providers.Feeds,
		}),
		domain.NodeTypeAPICall: apicall.NewAPICallIntegration(apicall.APICallIntegrationDependencies{
			HTTPClient: deps.HTTPClient,
		}),
		domain.NodeTypeCondition:  condition.NewConditionIntegration(),
		domain.NodeTypeHumanInput: humaninput.NewHumanInputIntegration(),
		domain.NodeTypeFirecrawl: firecrawl.NewFirecrawlIntegration(firecrawl.FirecrawlIntegrationDependencies{
			Scraper: deps.Providers.Scraper,
		}),
	}

	for nodeType, nodeExecutor := range executors {
		selector.Register(nodeType, nodeExecutor)
	}

	log.Info().Int("count", len(executors)).Msg("Node executors registered")
}
