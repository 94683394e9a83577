package rss

import (
	"context"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

const defaultMaxItems = 10

type RSSIntegrationDependencies struct {
	Feeds domain.FeedFetcher
}

type RSSIntegration struct {
	feeds domain.FeedFetcher
}

func NewRSSIntegration(deps RSSIntegrationDependencies) *RSSIntegration {
	return &RSSIntegration{
		feeds: deps.Feeds,
	}
}

func (i *RSSIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	feedURL := input.ResolveString("feedUrl")
	if feedURL == "" {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "Feed URL is required")
	}

	feed, err := i.feeds.Fetch(ctx, feedURL)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Failed to fetch feed")
	}

	log.Debug().
		Str("node_id", input.Node.ID).
		Str("feed_url", feedURL).
		Int("items", len(feed.Items)).
		Msg("Fetched feed")

	return domain.NewNodeResult(domain.NodeTypeRSS, FeedContent(feedURL, feed, input.Node.Int("maxItems", defaultMaxItems))), nil
}

// FeedContent shapes a feed into the map downstream templates reference,
// e.g. [[items.0.title] from rss].
func FeedContent(feedURL string, feed domain.Feed, maxItems int) map[string]any {
	items := feed.Items
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}

	entries := make([]any, 0, len(items))

	for _, item := range items {
		entries = append(entries, map[string]any{
			"title":       item.Title,
			"link":        item.Link,
			"description": item.Description,
			"content":     item.Content,
			"author":      item.Author,
			"guid":        item.GUID,
			"pub_date":    item.PubDate,
		})
	}

	return map[string]any{
		"feed_title": feed.Title,
		"feed_url":   feedURL,
		"feed_link":  feed.Link,
		"items":      entries,
	}
}
