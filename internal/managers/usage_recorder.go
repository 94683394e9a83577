package managers

import (
	"context"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

type usageRecorder struct {
	store domain.UsageRecorder
}

type UsageRecorderDependencies struct {
	// Store persists records. When nil, usage is only logged.
	Store domain.UsageRecorder
}

// NewUsageRecorder logs every token usage record and forwards it to the
// configured store for cost accounting.
func NewUsageRecorder(deps UsageRecorderDependencies) domain.UsageRecorder {
	return &usageRecorder{
		store: deps.Store,
	}
}

func (r *usageRecorder) RecordUsage(ctx context.Context, record domain.UsageRecord) error {
	log.Info().
		Str("execution_id", record.ExecutionID).
		Str("workflow_id", record.WorkflowID).
		Str("node_id", record.NodeID).
		Str("provider", record.Provider).
		Str("model", record.Model).
		Int("prompt_tokens", record.PromptTokens).
		Int("completion_tokens", record.CompletionTokens).
		Msg("Model usage")

	if r.store == nil {
		return nil
	}

	return r.store.RecordUsage(ctx, record)
}
