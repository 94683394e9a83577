package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
)

const (
	defaultBaseURL = "https://api.unsplash.com"
	defaultSize    = "regular"
	perPage        = 10
)

type ClientOpts struct {
	AccessKey  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client

	// Intn picks the random result index. Defaults to math/rand.
	Intn func(n int) int
}

type Client struct {
	accessKey  string
	baseURL    string
	httpClient *http.Client
	intn       func(n int) int
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

	intn := opts.Intn
	if intn == nil {
		intn = rand.IntN
	}

	return &Client{
		accessKey:  opts.AccessKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		intn:       intn,
	}
}

type searchResponse struct {
	Results []struct {
		ID   string            `json:"id"`
		URLs map[string]string `json:"urls"`
	} `json:"results"`
	Errors []string `json:"errors"`
}

// Search returns one image URL in the requested size variant, falling back
// to "regular" when the photo lacks that variant.
func (c *Client) Search(ctx context.Context, req domain.ImageSearchRequest) (string, error) {
	query := url.Values{}
	query.Set("query", req.Term)
	query.Set("per_page", fmt.Sprint(perPage))

	if req.Orientation != "" && req.Orientation != "any" {
		query.Set("orientation", req.Orientation)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/photos?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build unsplash request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Client-ID "+c.accessKey)
	httpReq.Header.Set("Accept-Version", "v1")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("unsplash api error: %w", err)
	}
	defer httpResp.Body.Close()

	var resp searchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode unsplash response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unsplash api error (status %d): %s", httpResp.StatusCode, strings.Join(resp.Errors, "; "))
	}

	if len(resp.Results) == 0 {
		return "", fmt.Errorf("no images found for %q", req.Term)
	}

	index := 0
	if req.Random {
		index = c.intn(len(resp.Results))
	}

	urls := resp.Results[index].URLs

	size := req.Size
	if size == "" {
		size = defaultSize
	}

	if imageURL, ok := urls[size]; ok && imageURL != "" {
		return imageURL, nil
	}

	if imageURL, ok := urls[defaultSize]; ok && imageURL != "" {
		return imageURL, nil
	}

	return "", fmt.Errorf("image %s has no %s url", resp.Results[index].ID, size)
}
