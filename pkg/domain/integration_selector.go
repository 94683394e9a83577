package domain

import (
	"context"
	"fmt"
	"strings"
)

// TemplateResolver substitutes dynamic variables and cross-node references.
type TemplateResolver interface {
	Resolve(content string, outputs *NodeOutputs, host HostVariables) string
}

type UpstreamResult struct {
	NodeID       string
	SourceHandle string
	Result       NodeResult
}

type NodeInput struct {
	Node             Node
	Inputs           []UpstreamResult
	Outputs          *NodeOutputs
	ExecutionContext ExecutionContext
	Resolver         TemplateResolver
}

// Resolve runs the template resolver over one template-eligible field.
func (i NodeInput) Resolve(content string) string {
	if i.Resolver == nil || content == "" {
		return content
	}

	return i.Resolver.Resolve(content, i.Outputs, i.ExecutionContext.Host)
}

func (i NodeInput) ResolveString(key string) string {
	return i.Resolve(i.Node.String(key))
}

func (i NodeInput) FirstInput() (UpstreamResult, bool) {
	if len(i.Inputs) == 0 {
		return UpstreamResult{}, false
	}

	return i.Inputs[0], true
}

// CombinedInput joins every upstream content, JSON encoding non-scalar values.
func (i NodeInput) CombinedInput(separator string) string {
	parts := make([]string, 0, len(i.Inputs))

	for _, input := range i.Inputs {
		content := input.Result.ContentString()
		if content == "" {
			continue
		}

		parts = append(parts, content)
	}

	return strings.Join(parts, separator)
}

type NodeExecutor interface {
	Execute(ctx context.Context, input NodeInput) (NodeResult, error)
}

type NodeExecutorFunc func(ctx context.Context, input NodeInput) (NodeResult, error)

func (f NodeExecutorFunc) Execute(ctx context.Context, input NodeInput) (NodeResult, error) {
	return f(ctx, input)
}

type ExecutorSelector interface {
	Select(nodeType NodeType) (NodeExecutor, error)
	Register(nodeType NodeType, executor NodeExecutor)
}

type executorSelector struct {
	executorsByType map[NodeType]NodeExecutor
}

func NewExecutorSelector() ExecutorSelector {
	return &executorSelector{
		executorsByType: make(map[NodeType]NodeExecutor),
	}
}

func (s *executorSelector) Register(nodeType NodeType, executor NodeExecutor) {
	s.executorsByType[nodeType] = executor
}

func (s *executorSelector) Select(nodeType NodeType) (NodeExecutor, error) {
	executor, ok := s.executorsByType[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, nodeType)
	}

	return executor, nil
}
