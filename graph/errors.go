package graph

import "fmt"

// RoutingError reports a decision function returning a label with no
// edge bound to it. This is a wiring fault, not a runtime condition;
// it fails the run immediately.
type RoutingError struct {
	Node  string
	Label string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("node %q routed to unknown label %q", e.Node, e.Label)
}

// GraphExecutionError wraps a node failure with the node's identity.
type GraphExecutionError struct {
	Node string
	Err  error
}

func (e *GraphExecutionError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *GraphExecutionError) Unwrap() error {
	return e.Err
}
