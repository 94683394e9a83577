package domain

import (
	"context"
	"time"
)

type ModelParams struct {
	SystemPrompt     string
	Temperature      *float64
	MaxTokens        int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

type CompletionRequest struct {
	Prompt string
	Model  string
	Images []string
	Params ModelParams
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type SearchResult struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type CompletionResponse struct {
	Text          string
	Provider      string
	Model         string
	Usage         *Usage
	Citations     []Citation
	SearchResults []SearchResult
}

type ToolOptions struct {
	WebSearch         bool
	FileSearch        bool
	VectorStoreIDs    []string
	SearchContextSize string
}

func (o ToolOptions) Enabled() bool {
	return o.WebSearch || o.FileSearch
}

type ModelProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ToolModelProvider is implemented by providers that can run hosted tools
// (web search, file search) during a completion.
type ToolModelProvider interface {
	ModelProvider
	CompleteWithTools(ctx context.Context, req CompletionRequest, tools ToolOptions) (CompletionResponse, error)
}

// ModelSelector picks a provider for a model name.
type ModelSelector interface {
	Select(model string) (ModelProvider, error)
}

type SearchRequest struct {
	Prompt              string
	Model               string
	SystemPrompt        string
	Temperature         *float64
	MaxTokens           int
	TopP                *float64
	FrequencyPenalty    *float64
	PresencePenalty     *float64
	SearchRecencyFilter string
	SearchDomainFilter  []string
}

type SearchResponse struct {
	Text      string
	Model     string
	Citations []Citation
	Usage     *Usage
}

type SearchProvider interface {
	Query(ctx context.Context, req SearchRequest) (SearchResponse, error)
}

type ImageSearchRequest struct {
	Term        string
	Orientation string
	Size        string
	Random      bool
}

type ImageSearchProvider interface {
	Search(ctx context.Context, req ImageSearchRequest) (string, error)
}

type ScrapeRequest struct {
	URL           string
	Formats       []string
	ExtractPrompt string
	ExtractSchema map[string]any
	OnlyMainText  bool
}

type Scraper interface {
	Scrape(ctx context.Context, req ScrapeRequest) (map[string]any, error)
}

type FeedItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
	Author      string `json:"author,omitempty"`
	GUID        string `json:"guid"`
	PubDate     string `json:"pub_date,omitempty"`
}

type Feed struct {
	Title string     `json:"title"`
	Link  string     `json:"link"`
	Items []FeedItem `json:"items"`
}

type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (Feed, error)
}

type UsageRecord struct {
	ExecutionID      string    `json:"execution_id"`
	WorkflowID       string    `json:"workflow_id"`
	NodeID           string    `json:"node_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	RecordedAt       time.Time `json:"recorded_at"`
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, record UsageRecord) error
}
