package graph

import (
	"context"
	"fmt"

	"github.com/naveenvasou/cerina-v0/core"
)

// End is the terminal edge target. Routing to End finishes the thread.
const End = "__end__"

// NodeFunc executes one stage against a state snapshot and returns a
// partial update or an interrupt request.
type NodeFunc func(ctx context.Context, s State) (*NodeResult, error)

// DecisionFunc inspects merged state and returns a routing label.
type DecisionFunc func(s State) string

type node struct {
	name    string
	fn      NodeFunc
	targets []string

	decision DecisionFunc
	labels   map[string]string
}

// Builder accumulates a graph definition. All validation happens in
// Compile so wiring code stays declarative.
type Builder struct {
	schema Schema
	nodes  map[string]*node
	order  []string
	entry  string
	errs   []error
}

// NewBuilder starts a graph definition over the given merge schema.
func NewBuilder(schema Schema) *Builder {
	if schema == nil {
		schema = Schema{}
	}
	return &Builder{
		schema: schema,
		nodes:  make(map[string]*node),
	}
}

// AddNode registers a named node.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if name == "" || name == End {
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", core.ErrDuplicateNode, name))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has nil func", name))
		return b
	}
	b.nodes[name] = &node{name: name, fn: fn}
	b.order = append(b.order, name)
	return b
}

// AddEdge adds a static edge. Multiple edges from one node fan out to
// all targets in the same super-step.
func (b *Builder) AddEdge(from, to string) *Builder {
	n, ok := b.nodes[from]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: edge source %s", core.ErrNodeNotFound, from))
		return b
	}
	if n.decision != nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has conditional edges, cannot add static edge", from))
		return b
	}
	n.targets = append(n.targets, to)
	return b
}

// AddConditionalEdges routes from a node through a decision function.
// The labels map binds every label the decision may return to a target
// node or End.
func (b *Builder) AddConditionalEdges(from string, decide DecisionFunc, labels map[string]string) *Builder {
	n, ok := b.nodes[from]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: conditional source %s", core.ErrNodeNotFound, from))
		return b
	}
	if len(n.targets) > 0 {
		b.errs = append(b.errs, fmt.Errorf("node %q has static edges, cannot add conditional edges", from))
		return b
	}
	if decide == nil || len(labels) == 0 {
		b.errs = append(b.errs, fmt.Errorf("node %q: conditional edges need a decision func and labels", from))
		return b
	}
	n.decision = decide
	n.labels = labels
	return b
}

// SetEntryPoint names the node where fresh runs begin.
func (b *Builder) SetEntryPoint(name string) *Builder {
	b.entry = name
	return b
}

// Compile validates the definition and binds it to a checkpoint store.
func (b *Builder) Compile(store CheckpointStore, opts ...GraphOption) (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("graph definition invalid: %w", b.errs[0])
	}
	if err := b.schema.Validate(); err != nil {
		return nil, err
	}
	if b.entry == "" {
		return nil, core.ErrNoEntryPoint
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", core.ErrNodeNotFound, b.entry)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: checkpoint store required", core.ErrMissingConfiguration)
	}

	for _, n := range b.nodes {
		for _, target := range n.targets {
			if err := b.checkTarget(n.name, target); err != nil {
				return nil, err
			}
		}
		for label, target := range n.labels {
			if err := b.checkTarget(n.name, target); err != nil {
				return nil, fmt.Errorf("label %q: %w", label, err)
			}
		}
	}

	g := &Graph{
		schema: b.schema,
		nodes:  b.nodes,
		entry:  b.entry,
		store:  store,
		logger: &core.NoOpLogger{},
		name:   "workflow",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (b *Builder) checkTarget(from, target string) error {
	if target == End {
		return nil
	}
	if _, ok := b.nodes[target]; !ok {
		return fmt.Errorf("%w: node %q targets %q", core.ErrNodeNotFound, from, target)
	}
	return nil
}

// GraphOption configures a compiled Graph
type GraphOption func(*Graph)

// WithLogger sets the engine logger
func WithLogger(logger core.Logger) GraphOption {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithName tags telemetry spans with a graph name
func WithName(name string) GraphOption {
	return func(g *Graph) { g.name = name }
}
