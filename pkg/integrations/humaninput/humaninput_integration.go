package humaninput

import (
	"context"

	"github.com/flowbaker/autoflow/pkg/domain"
)

// HumanInputIntegration pauses the run until someone approves or reverts.
// The decision itself is recorded by the run loop on resume.
type HumanInputIntegration struct{}

func NewHumanInputIntegration() *HumanInputIntegration {
	return &HumanInputIntegration{}
}

func (i *HumanInputIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	instructions := input.ResolveString("instructions")
	if instructions == "" {
		instructions = "Review the content and approve or revert."
	}

	result := domain.NewNodeResult(domain.NodeTypeHumanInput, map[string]any{
		"instructions": instructions,
		"input":        input.CombinedInput("\n\n"),
	})
	result.Status = domain.NodeResultStatusPending

	return result, nil
}
