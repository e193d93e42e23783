package graph

import "context"

// InterruptSignal is the payload a node surfaces when it suspends.
// Suspension travels the result channel, never the error channel: a
// suspended run is healthy, it is waiting for outside input.
type InterruptSignal struct {
	// Payload is presented to whoever must answer the interrupt.
	Payload map[string]any `json:"payload"`
}

// InterruptInfo describes a suspended run to the caller of Invoke.
type InterruptInfo struct {
	Node    string         `json:"node"`
	Payload map[string]any `json:"payload"`
}

// NodeResult is what a node returns: either a partial state update, or
// an interrupt signal requesting suspension at this node.
type NodeResult struct {
	Update    State
	Interrupt *InterruptSignal
}

// UpdateResult wraps a partial state update.
func UpdateResult(update State) *NodeResult {
	return &NodeResult{Update: update}
}

// SuspendResult requests suspension with a payload for the approver.
// The node will be re-entered from the top on resume, so any side
// effects before the suspension point must be guarded by state.
func SuspendResult(payload map[string]any) *NodeResult {
	return &NodeResult{Interrupt: &InterruptSignal{Payload: payload}}
}

// SuspendWithUpdate suspends like SuspendResult but first merges a
// partial update into the checkpointed state. Interrupt nodes use this
// to persist their side-effect guard flags across the suspension.
func SuspendWithUpdate(update State, payload map[string]any) *NodeResult {
	return &NodeResult{Update: update, Interrupt: &InterruptSignal{Payload: payload}}
}

type resumeKey struct{}

// WithResumeValue binds a resume value into the context handed to a
// re-entered node. The engine calls this during Resume.
func WithResumeValue(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, resumeKey{}, v)
}

// ResumeValue retrieves the value supplied to Resume, if the current
// node execution is a resume re-entry.
func ResumeValue(ctx context.Context) (any, bool) {
	v := ctx.Value(resumeKey{})
	return v, v != nil
}
