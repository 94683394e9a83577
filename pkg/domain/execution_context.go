package domain

import (
	"context"
)

type TriggerSource string

const (
	TriggerSourceManual   TriggerSource = "manual"
	TriggerSourceWebhook  TriggerSource = "webhook"
	TriggerSourceSchedule TriggerSource = "schedule"
	TriggerSourceChain    TriggerSource = "chain"
	TriggerSourceChat     TriggerSource = "chat"
	TriggerSourceResume   TriggerSource = "resume"
)

// HostVariables feeds the {{site_*}}, {{post_*}}, {{product_*}} and {{cart_*}}
// template variables.
type HostVariables struct {
	Site    map[string]string `json:"site,omitempty"`
	Post    map[string]any    `json:"post,omitempty"`
	Product map[string]any    `json:"product,omitempty"`
	Cart    map[string]any    `json:"cart,omitempty"`
}

// ExecutionContext is handed to every node executor. It replaces any
// process wide "current payload" state: the trigger payload lives here.
type ExecutionContext struct {
	ExecutionID    string
	WorkflowID     string
	WorkflowName   string
	Source         TriggerSource
	TriggerPayload any
	Host           HostVariables
	HumanInput     any
}

type executionContextKey struct{}

func NewContextWithExecutionContext(ctx context.Context, execCtx ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, execCtx)
}

func GetExecutionContext(ctx context.Context) (ExecutionContext, bool) {
	execCtx, ok := ctx.Value(executionContextKey{}).(ExecutionContext)

	return execCtx, ok
}
