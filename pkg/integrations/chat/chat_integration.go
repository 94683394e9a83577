package chat

import (
	"context"

	"github.com/flowbaker/autoflow/pkg/domain"
)

const defaultModel = "gpt-4o-mini"

// ChatIntegration configures a chat session rather than calling a model.
// Its actions are edges leaving the node through per action handles.
type ChatIntegration struct{}

func NewChatIntegration() *ChatIntegration {
	return &ChatIntegration{}
}

func (i *ChatIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	settings := map[string]any{}
	for key, value := range input.Node.Map("settings") {
		settings[key] = value
	}

	for _, key := range []string{"temperature", "maxTokens", "welcomeMessage", "placeholder", "actions"} {
		if value, ok := input.Node.Data[key]; ok {
			settings[key] = value
		}
	}

	if welcome, ok := settings["welcomeMessage"].(string); ok {
		settings["welcomeMessage"] = input.Resolve(welcome)
	}

	return domain.NewNodeResult(domain.NodeTypeChat, map[string]any{
		"model":        input.Node.StringOr("model", defaultModel),
		"systemPrompt": input.ResolveString("systemPrompt"),
		"settings":     settings,
	}), nil
}
