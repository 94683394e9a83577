package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clbanning/mxj/v2"
	"github.com/flowbaker/autoflow/pkg/domain"
)

const maxFeedSize = 10 << 20

type ClientOpts struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client fetches RSS 2.0, RSS 1.0 and Atom feeds.
type Client struct {
	httpClient *http.Client
}

func New(opts ClientOpts) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		httpClient: httpClient,
	}
}

func (c *Client) Fetch(ctx context.Context, feedURL string) (domain.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("failed to build feed request: %w", err)
	}

	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.Feed{}, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return domain.Feed{}, fmt.Errorf("failed to read feed: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (domain.Feed, error) {
	mv, err := mxj.NewMapXml(data)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("failed to parse feed XML: %w", err)
	}

	if rss, ok := lookup(mv, "rss").(map[string]any); ok {
		channel, _ := lookup(rss, "channel").(map[string]any)
		return parseRSSChannel(channel, lookup(channel, "item")), nil
	}

	if rdf, ok := lookup(mv, "rdf:RDF", "RDF").(map[string]any); ok {
		channel, _ := lookup(rdf, "channel").(map[string]any)
		return parseRSSChannel(channel, lookup(rdf, "item")), nil
	}

	if atom, ok := lookup(mv, "feed").(map[string]any); ok {
		return parseAtom(atom), nil
	}

	return domain.Feed{}, fmt.Errorf("document is neither RSS nor Atom")
}

func parseRSSChannel(channel map[string]any, rawItems any) domain.Feed {
	feed := domain.Feed{
		Title: text(lookup(channel, "title")),
		Link:  text(lookup(channel, "link")),
	}

	for _, raw := range list(rawItems) {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		link := text(lookup(item, "link"))
		guid := text(lookup(item, "guid"))
		if guid == "" {
			guid = link
		}

		feed.Items = append(feed.Items, domain.FeedItem{
			Title:       text(lookup(item, "title")),
			Link:        link,
			Description: text(lookup(item, "description")),
			Content:     text(lookup(item, "content:encoded", "encoded")),
			Author:      text(lookup(item, "author", "dc:creator", "creator")),
			GUID:        guid,
			PubDate:     text(lookup(item, "pubDate", "dc:date", "date")),
		})
	}

	return feed
}

func parseAtom(atom map[string]any) domain.Feed {
	feed := domain.Feed{
		Title: text(lookup(atom, "title")),
		Link:  atomLink(lookup(atom, "link")),
	}

	for _, raw := range list(lookup(atom, "entry")) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		link := atomLink(lookup(entry, "link"))
		id := text(lookup(entry, "id"))
		if id == "" {
			id = link
		}

		var author string
		if authorMap, ok := lookup(entry, "author").(map[string]any); ok {
			author = text(lookup(authorMap, "name"))
		}

		published := text(lookup(entry, "published"))
		if published == "" {
			published = text(lookup(entry, "updated"))
		}

		feed.Items = append(feed.Items, domain.FeedItem{
			Title:       text(lookup(entry, "title")),
			Link:        link,
			Description: text(lookup(entry, "summary")),
			Content:     text(lookup(entry, "content")),
			Author:      author,
			GUID:        id,
			PubDate:     published,
		})
	}

	return feed
}

// atomLink prefers rel="alternate" (or no rel) among the entry links.
func atomLink(value any) string {
	var fallback string

	for _, raw := range list(value) {
		link, ok := raw.(map[string]any)
		if !ok {
			if fallback == "" {
				fallback = text(raw)
			}

			continue
		}

		href := text(link["-href"])
		rel := text(link["-rel"])

		if rel == "" || rel == "alternate" {
			return href
		}

		if fallback == "" {
			fallback = href
		}
	}

	return fallback
}

func lookup(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := m[key]; ok {
			return value
		}
	}

	return nil
}

func list(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	}

	return []any{value}
}

// text reads element text; mxj stores it under "#text" when the element
// also carries attributes.
func text(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return text(v["#text"])
	case []any:
		if len(v) > 0 {
			return text(v[0])
		}
	case nil:
		return ""
	}

	return strings.TrimSpace(fmt.Sprint(value))
}
