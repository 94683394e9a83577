package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
)

const defaultBaseURL = "https://api.firecrawl.dev"

type ClientOpts struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func New(opts ClientOpts) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type extractOptions struct {
	Prompt string         `json:"prompt,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

type scrapeRequest struct {
	URL             string          `json:"url"`
	Formats         []string        `json:"formats"`
	OnlyMainContent bool            `json:"onlyMainContent"`
	Extract         *extractOptions `json:"extract,omitempty"`
}

// Scrape returns the decoded API response, {success, data: {markdown,
// extract, metadata}}.
func (c *Client) Scrape(ctx context.Context, req domain.ScrapeRequest) (map[string]any, error) {
	formats := slices.Clone(req.Formats)
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}

	body := scrapeRequest{
		URL:             req.URL,
		Formats:         formats,
		OnlyMainContent: req.OnlyMainText,
	}

	if req.ExtractPrompt != "" || len(req.ExtractSchema) > 0 {
		body.Extract = &extractOptions{Prompt: req.ExtractPrompt, Schema: req.ExtractSchema}

		if !slices.Contains(body.Formats, "extract") {
			body.Formats = append(body.Formats, "extract")
		}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode firecrawl request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build firecrawl request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("firecrawl api error: %w", err)
	}
	defer httpResp.Body.Close()

	var resp map[string]any
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode firecrawl response (status %d): %w", httpResp.StatusCode, err)
	}

	if success, _ := resp["success"].(bool); httpResp.StatusCode >= http.StatusBadRequest || !success {
		message, _ := resp["error"].(string)
		if message == "" {
			message = http.StatusText(httpResp.StatusCode)
		}

		return nil, fmt.Errorf("firecrawl scrape failed (status %d): %s", httpResp.StatusCode, message)
	}

	return resp, nil
}
