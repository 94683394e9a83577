package provider

import (
	"fmt"
	"strings"

	"github.com/flowbaker/autoflow/pkg/domain"
)

type RouterDependencies struct {
	OpenAI     domain.ModelProvider
	OpenRouter domain.ModelProvider
	Anthropic  domain.ModelProvider
	Gemini     domain.ModelProvider
}

// Router picks a provider by model name. Names containing "/" are
// OpenRouter ids such as "meta-llama/llama-3-70b"; claude and gemini
// models go to their native SDKs; everything else goes to OpenAI.
type Router struct {
	openAI     domain.ModelProvider
	openRouter domain.ModelProvider
	anthropic  domain.ModelProvider
	gemini     domain.ModelProvider
}

func NewRouter(deps RouterDependencies) *Router {
	return &Router{
		openAI:     deps.OpenAI,
		openRouter: deps.OpenRouter,
		anthropic:  deps.Anthropic,
		gemini:     deps.Gemini,
	}
}

func (r *Router) Select(model string) (domain.ModelProvider, error) {
	name, provider := r.route(strings.ToLower(strings.TrimSpace(model)))
	if provider == nil {
		return nil, fmt.Errorf("%w: %s (model %q)", domain.ErrProviderNotConfigured, name, model)
	}

	return provider, nil
}

func (r *Router) route(model string) (string, domain.ModelProvider) {
	switch {
	case strings.Contains(model, "/"):
		return "openrouter", r.openRouter
	case strings.HasPrefix(model, "claude"):
		return "anthropic", r.anthropic
	case strings.HasPrefix(model, "gemini"):
		return "gemini", r.gemini
	}

	return "openai", r.openAI
}
