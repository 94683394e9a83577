package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar"
)

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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string    `json:"model"`
	Messages            []message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxTokens           int       `json:"max_tokens,omitempty"`
	TopP                *float64  `json:"top_p,omitempty"`
	FrequencyPenalty    *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64  `json:"presence_penalty,omitempty"`
	SearchRecencyFilter string    `json:"search_recency_filter,omitempty"`
	SearchDomainFilter  []string  `json:"search_domain_filter,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Citations     []string `json:"citations"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"search_results"`
	Usage *domain.Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Query(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	var messages []message
	if req.SystemPrompt != "" {
		messages = append(messages, message{Role: "system", Content: req.SystemPrompt})
	}

	messages = append(messages, message{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:               model,
		Messages:            messages,
		Temperature:         req.Temperature,
		MaxTokens:           req.MaxTokens,
		TopP:                req.TopP,
		FrequencyPenalty:    req.FrequencyPenalty,
		PresencePenalty:     req.PresencePenalty,
		SearchRecencyFilter: req.SearchRecencyFilter,
		SearchDomainFilter:  req.SearchDomainFilter,
	})
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("failed to encode perplexity request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("failed to build perplexity request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("perplexity api error: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("failed to read perplexity response: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.SearchResponse{}, fmt.Errorf("failed to decode perplexity response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		message := http.StatusText(httpResp.StatusCode)
		if resp.Error != nil && resp.Error.Message != "" {
			message = resp.Error.Message
		}

		return domain.SearchResponse{}, fmt.Errorf("perplexity api error (status %d): %s", httpResp.StatusCode, message)
	}

	if len(resp.Choices) == 0 {
		return domain.SearchResponse{}, fmt.Errorf("perplexity returned no choices")
	}

	return domain.SearchResponse{
		Text:      resp.Choices[0].Message.Content,
		Model:     resp.Model,
		Citations: citations(resp),
		Usage:     resp.Usage,
	}, nil
}

// citations prefers search_results, which carry titles, over the bare
// citations URL list.
func citations(resp chatResponse) []domain.Citation {
	var result []domain.Citation

	if len(resp.SearchResults) > 0 {
		for _, searchResult := range resp.SearchResults {
			result = append(result, domain.Citation{URL: searchResult.URL, Title: searchResult.Title})
		}

		return result
	}

	for _, url := range resp.Citations {
		result = append(result, domain.Citation{URL: url})
	}

	return result
}
