package domain

import (
	"errors"
	"fmt"
)

var (
	ErrWorkflowNotFound       = errors.New("workflow not found")
	ErrWorkflowInactive       = errors.New("workflow is not active")
	ErrInvalidWorkflow        = errors.New("invalid workflow")
	ErrCycleDetected          = errors.New("cycle detected")
	ErrExecutionNotFound      = errors.New("execution not found")
	ErrExecutionNotResumable  = errors.New("execution is not resumable")
	ErrExecutionTerminated    = errors.New("execution terminated")
	ErrExecutorNotFound       = errors.New("node executor not found")
	ErrEntityNotFound         = errors.New("entity not found")
	ErrWebhookKeyMismatch     = errors.New("webhook key mismatch")
	ErrProviderNotConfigured  = errors.New("provider not configured")
	ErrCapabilityNotSupported = errors.New("capability not supported")
)

// NodeError is an expected node failure. The run loop stores it as an
// error result and keeps going.
type NodeError struct {
	NodeID  string
	Message string
	Err     error
}

func NewNodeError(nodeID string, format string, args ...any) *NodeError {
	return &NodeError{
		NodeID:  nodeID,
		Message: fmt.Sprintf(format, args...),
	}
}

func WrapNodeError(nodeID string, err error, message string) *NodeError {
	return &NodeError{
		NodeID:  nodeID,
		Message: message,
		Err:     err,
	}
}

func (e *NodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
