package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flowbaker/autoflow/pkg/domain"
)

type responsesRequest struct {
	Model           string           `json:"model"`
	Instructions    string           `json:"instructions,omitempty"`
	Input           []responsesInput `json:"input"`
	Tools           []map[string]any `json:"tools,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

type responsesInput struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			Annotations []struct {
				Type  string `json:"type"`
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"annotations"`
		} `json:"content"`
		Results []struct {
			Filename string `json:"filename"`
			Text     string `json:"text"`
		} `json:"results"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) createResponse(ctx context.Context, req domain.CompletionRequest, tools domain.ToolOptions) (domain.CompletionResponse, error) {
	content := []map[string]any{{"type": "input_text", "text": req.Prompt}}
	for _, imageURL := range req.Images {
		content = append(content, map[string]any{"type": "input_image", "image_url": imageURL})
	}

	body := responsesRequest{
		Model:           req.Model,
		Instructions:    req.Params.SystemPrompt,
		Input:           []responsesInput{{Role: "user", Content: content}},
		Tools:           responseTools(tools),
		Temperature:     req.Params.Temperature,
		TopP:            req.Params.TopP,
		MaxOutputTokens: req.Params.MaxTokens,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("failed to encode responses request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", bytes.NewReader(encoded))
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("failed to build responses request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("%s api error: %w", p.name, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("failed to read responses body: %w", err)
	}

	var resp responsesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("failed to decode responses body: %w", err)
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		message := http.StatusText(httpResp.StatusCode)
		if resp.Error != nil && resp.Error.Message != "" {
			message = resp.Error.Message
		}

		return domain.CompletionResponse{}, fmt.Errorf("%s api error (status %d): %s", p.name, httpResp.StatusCode, message)
	}

	return toCompletionResponse(p.name, req.Model, resp), nil
}

func responseTools(tools domain.ToolOptions) []map[string]any {
	var result []map[string]any

	if tools.WebSearch {
		tool := map[string]any{"type": "web_search_preview"}
		if tools.SearchContextSize != "" {
			tool["search_context_size"] = tools.SearchContextSize
		}

		result = append(result, tool)
	}

	if tools.FileSearch && len(tools.VectorStoreIDs) > 0 {
		result = append(result, map[string]any{
			"type":             "file_search",
			"vector_store_ids": tools.VectorStoreIDs,
		})
	}

	return result
}

func toCompletionResponse(provider, model string, resp responsesResponse) domain.CompletionResponse {
	var text strings.Builder
	var citations []domain.Citation
	var results []domain.SearchResult

	seen := map[string]bool{}

	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type != "output_text" {
					continue
				}

				text.WriteString(part.Text)

				for _, annotation := range part.Annotations {
					if annotation.Type != "url_citation" || seen[annotation.URL] {
						continue
					}

					seen[annotation.URL] = true
					citations = append(citations, domain.Citation{URL: annotation.URL, Title: annotation.Title})
				}
			}
		case "file_search_call":
			for _, result := range item.Results {
				results = append(results, domain.SearchResult{Title: result.Filename, Snippet: result.Text})
			}
		}
	}

	if resp.Model != "" {
		model = resp.Model
	}

	return domain.CompletionResponse{
		Text:          text.String(),
		Provider:      provider,
		Model:         model,
		Citations:     citations,
		SearchResults: results,
		Usage: &domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}
