package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

const (
	defaultInitialInterval = time.Second
	maxRetryInterval       = 30 * time.Second
	maxResponseBytes       = 10 << 20
)

type APICallIntegrationDependencies struct {
	HTTPClient *http.Client
	// InitialInterval is the first backoff delay. Zero means one second.
	InitialInterval time.Duration
}

type APICallIntegration struct {
	client          *http.Client
	initialInterval time.Duration
}

func NewAPICallIntegration(deps APICallIntegrationDependencies) *APICallIntegration {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	if deps.InitialInterval <= 0 {
		deps.InitialInterval = defaultInitialInterval
	}

	return &APICallIntegration{
		client:          deps.HTTPClient,
		initialInterval: deps.InitialInterval,
	}
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

type apiRequest struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

// Execute sends the request, retrying server errors with exponential backoff
// and jitter up to retryCount times, and extracts responsePath from the body.
func (i *APICallIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	nodeID := input.Node.ID

	req, err := i.buildRequest(input)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Invalid API call")
	}

	retryCount := input.Node.Int("retryCount", 0)
	if retryCount < 0 {
		retryCount = 0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = i.initialInterval
	policy.RandomizationFactor = 0.5
	policy.Multiplier = 2
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = 0
	policy.Reset()

	var body []byte

	operation := func() error {
		respBody, err := i.do(ctx, req)
		if err != nil {
			var statusErr *statusError
			if errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError {
				return err
			}

			return backoff.Permanent(err)
		}

		body = respBody

		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("node_id", nodeID).Dur("wait", wait).Msg("API call failed, retrying")
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retryCount)), ctx), notify)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "API call failed")
	}

	response := decodeBody(body)

	path := input.ResolveString("responsePath")
	if path == "" {
		return domain.NewNodeResult(domain.NodeTypeAPICall, response), nil
	}

	extracted, ok := domain.ExtractPropertyPath(response, path)
	if !ok {
		return domain.NodeResult{}, domain.NewNodeError(nodeID, "Path %s not found in response", path)
	}

	return domain.NewNodeResult(domain.NodeTypeAPICall, extracted), nil
}

func (i *APICallIntegration) buildRequest(input domain.NodeInput) (apiRequest, error) {
	rawURL := strings.TrimSpace(input.ResolveString("url"))
	if rawURL == "" {
		return apiRequest{}, errors.New("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return apiRequest{}, fmt.Errorf("invalid url %q", rawURL)
	}

	if params := input.Node.Map("queryParams"); len(params) > 0 {
		query := parsed.Query()
		for key, value := range params {
			query.Set(key, input.Resolve(domain.StringifyContent(value)))
		}
		parsed.RawQuery = query.Encode()
	}

	req := apiRequest{
		method:  strings.ToUpper(input.Node.StringOr("method", http.MethodGet)),
		url:     parsed.String(),
		headers: map[string]string{},
	}

	for key, value := range input.Node.Map("headers") {
		req.headers[key] = input.Resolve(domain.StringifyContent(value))
	}

	switch body := input.Node.Data["body"].(type) {
	case nil:
	case string:
		if resolved := input.Resolve(body); resolved != "" {
			req.body = []byte(resolved)
			if json.Valid(req.body) {
				setDefaultHeader(req.headers, "Content-Type", "application/json")
			}
		}
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return apiRequest{}, fmt.Errorf("failed to encode body: %w", err)
		}

		req.body = []byte(input.Resolve(string(encoded)))
		setDefaultHeader(req.headers, "Content-Type", "application/json")
	}

	return req, nil
}

func (i *APICallIntegration) do(ctx context.Context, req apiRequest) ([]byte, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func decodeBody(body []byte) any {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded
	}

	return string(body)
}

func setDefaultHeader(headers map[string]string, key, value string) {
	for existing := range headers {
		if strings.EqualFold(existing, key) {
			return
		}
	}

	headers[key] = value
}
