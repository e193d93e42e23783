package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Graph construction and execution errors
	ErrNodeNotFound      = errors.New("node not found")
	ErrDuplicateNode     = errors.New("duplicate node")
	ErrNoEntryPoint      = errors.New("no entry point set")
	ErrGraphNotCompiled  = errors.New("graph not compiled")
	ErrUnknownRouteLabel = errors.New("unknown route label")

	// Checkpoint and resume errors
	ErrNoCheckpoint     = errors.New("no checkpoint found")
	ErrNothingToResume  = errors.New("nothing to resume")
	ErrWorkflowRunning  = errors.New("workflow already running")
	ErrWorkflowNotFound = errors.New("workflow not found")

	// Provider and tool errors
	ErrProviderFailure = errors.New("provider call failed")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrToolNotFound    = errors.New("tool not found")

	// Operation errors
	ErrTimeout         = errors.New("operation timeout")
	ErrContextCanceled = errors.New("context canceled")
	ErrEmitterClosed   = errors.New("emitter closed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
)

// WorkflowError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type WorkflowError struct {
	Op      string // Operation that failed (e.g., "graph.Invoke")
	Kind    string // Error kind (e.g., "graph", "checkpoint", "agent")
	ID      string // Optional ID of the entity involved (thread ID, node name)
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *WorkflowError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new WorkflowError
func NewWorkflowError(op, kind string, err error) *WorkflowError {
	return &WorkflowError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is a transient failure worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderFailure)
}

// IsRecoverable reports whether an error describes a user-resolvable
// condition rather than a programming fault.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNoCheckpoint) ||
		errors.Is(err, ErrNothingToResume) ||
		errors.Is(err, ErrWorkflowNotFound)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
