package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/telemetry"
)

// Graph is a compiled, executable workflow graph.
type Graph struct {
	schema Schema
	nodes  map[string]*node
	entry  string
	store  CheckpointStore
	logger core.Logger
	name   string
}

// Result is the outcome of an Invoke, Resume, or stream pass.
// Exactly one of Done or Interrupt describes the terminal condition.
type Result struct {
	State     State
	Interrupt *InterruptInfo
	Done      bool
}

// Step is one item of a streamed execution: a per-node update, the
// final Result, or a terminating error.
type Step struct {
	Node   string
	Update State
	Result *Result
	Err    error
}

// Invoke starts a fresh run for a thread from the entry point.
func (g *Graph) Invoke(ctx context.Context, initial State, threadID string) (*Result, error) {
	return g.run(ctx, initial.Clone(), []string{g.entry}, threadID, nil, nil)
}

// Resume re-enters a suspended or stopped thread, binding the resume
// value into the re-entered node's context. Returns
// core.ErrNothingToResume when the thread has no checkpoint or nothing
// left to execute.
func (g *Graph) Resume(ctx context.Context, threadID string, resumeValue any) (*Result, error) {
	cp, err := g.loadResumable(ctx, threadID)
	if err != nil {
		return nil, err
	}
	telemetry.AddSpanEvent(ctx, "workflow.resume",
		attribute.String("thread_id", threadID),
		attribute.StringSlice("next", cp.Next),
	)
	return g.run(ctx, cp.State.Clone(), cp.Next, threadID, resumeValue, nil)
}

// ResumeFromCheckpoint continues a canceled thread from its last
// completed super-step without supplying a resume value.
func (g *Graph) ResumeFromCheckpoint(ctx context.Context, threadID string) (*Result, error) {
	cp, err := g.loadResumable(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return g.run(ctx, cp.State.Clone(), cp.Next, threadID, nil, nil)
}

// Stream runs a thread lazily, delivering one Step per node update and
// a final Step carrying the Result or error. The channel closes when
// the run reaches a terminal state, suspends, or is canceled.
func (g *Graph) Stream(ctx context.Context, initial State, threadID string) <-chan Step {
	ch := make(chan Step)
	go func() {
		defer close(ch)
		observe := func(nodeName string, update State) {
			select {
			case ch <- Step{Node: nodeName, Update: update}:
			case <-ctx.Done():
			}
		}
		res, err := g.run(ctx, initial.Clone(), []string{g.entry}, threadID, nil, observe)
		final := Step{Result: res, Err: err}
		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()
	return ch
}

// Checkpoint returns the thread's current checkpoint, or
// core.ErrNoCheckpoint.
func (g *Graph) Checkpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	return g.store.Get(ctx, threadID)
}

func (g *Graph) loadResumable(ctx context.Context, threadID string) (*Checkpoint, error) {
	cp, err := g.store.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, core.ErrNoCheckpoint) {
			return nil, fmt.Errorf("thread %s: %w", threadID, core.ErrNothingToResume)
		}
		return nil, core.NewWorkflowError("graph.Resume", "checkpoint", err)
	}
	if len(cp.Next) == 0 {
		return nil, fmt.Errorf("thread %s already completed: %w", threadID, core.ErrNothingToResume)
	}
	return cp, nil
}

type nodeOutcome struct {
	result *NodeResult
	err    error
}

// run drives the super-step loop. The resume value, when present, is
// bound only into the first super-step's node contexts.
func (g *Graph) run(ctx context.Context, state State, frontier []string, threadID string, resumeValue any, observe func(string, State)) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, g.name+".run",
		attribute.String("thread_id", threadID),
	)
	defer span.End()

	for step := 0; ; step++ {
		if len(frontier) == 0 {
			return &Result{State: state, Done: true}, nil
		}

		// Cancellation is cooperative at super-step boundaries. The
		// checkpoint from the last completed super-step stays intact.
		if err := ctx.Err(); err != nil {
			telemetry.AddSpanEvent(ctx, "workflow.canceled",
				attribute.Int("super_step", step),
			)
			g.logger.Info("Run canceled at super-step boundary", map[string]interface{}{
				"thread_id":  threadID,
				"super_step": step,
				"frontier":   frontier,
			})
			return nil, fmt.Errorf("thread %s: %w", threadID, core.ErrContextCanceled)
		}

		telemetry.AddSpanEvent(ctx, "workflow.super_step",
			attribute.Int("super_step", step),
			attribute.StringSlice("frontier", frontier),
		)

		nodeCtx := ctx
		if step == 0 && resumeValue != nil {
			nodeCtx = WithResumeValue(ctx, resumeValue)
		}

		outcomes := g.executeFrontier(nodeCtx, state, frontier)

		// A failed sibling fails the whole super-step.
		for i, out := range outcomes {
			if out.err != nil {
				err := &GraphExecutionError{Node: frontier[i], Err: out.err}
				telemetry.RecordSpanError(ctx, err)
				g.logger.Error("Node execution failed", map[string]interface{}{
					"thread_id": threadID,
					"node":      frontier[i],
					"error":     out.err.Error(),
				})
				return nil, err
			}
		}

		// Merge sibling updates in frontier order under the schema.
		var interrupted []string
		var interruptInfo *InterruptInfo
		for i, out := range outcomes {
			if out.result.Update != nil {
				g.schema.Apply(state, out.result.Update)
				if observe != nil {
					observe(frontier[i], out.result.Update)
				}
			}
			if out.result.Interrupt != nil {
				interrupted = append(interrupted, frontier[i])
				if interruptInfo == nil {
					interruptInfo = &InterruptInfo{
						Node:    frontier[i],
						Payload: out.result.Interrupt.Payload,
					}
				}
			}
		}

		if interruptInfo != nil {
			next, err := g.interruptFrontier(state, frontier, interrupted)
			if err != nil {
				telemetry.RecordSpanError(ctx, err)
				return nil, err
			}
			// Persist before surfacing so a crash between the two
			// still leaves a resumable thread.
			g.saveCheckpoint(ctx, threadID, state, next)
			telemetry.AddSpanEvent(ctx, "workflow.interrupted",
				attribute.String("node", interruptInfo.Node),
			)
			return &Result{State: state, Interrupt: interruptInfo}, nil
		}

		next, err := g.nextFrontier(state, frontier)
		if err != nil {
			telemetry.RecordSpanError(ctx, err)
			return nil, err
		}

		g.saveCheckpoint(ctx, threadID, state, next)
		frontier = next
	}
}

// interruptFrontier is the resume frontier after a suspension: the
// interrupted nodes re-enter, and siblings that completed in the same
// super-step still hand off to their successors.
func (g *Graph) interruptFrontier(state State, frontier, interrupted []string) ([]string, error) {
	suspended := make(map[string]bool, len(interrupted))
	for _, name := range interrupted {
		suspended[name] = true
	}
	var completed []string
	for _, name := range frontier {
		if !suspended[name] {
			completed = append(completed, name)
		}
	}

	next := append([]string(nil), interrupted...)
	successors, err := g.nextFrontier(state, completed)
	if err != nil {
		return nil, err
	}
	for _, target := range successors {
		if !suspended[target] {
			next = append(next, target)
		}
	}
	return next, nil
}

// executeFrontier runs the frontier nodes concurrently against the same
// state snapshot and collects outcomes in frontier order.
func (g *Graph) executeFrontier(ctx context.Context, state State, frontier []string) []nodeOutcome {
	outcomes := make([]nodeOutcome, len(frontier))
	snapshot := state.Clone()

	var wg sync.WaitGroup
	for i, name := range frontier {
		wg.Add(1)
		go func(idx int, nodeName string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[idx] = nodeOutcome{err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
				}
			}()
			res, err := g.nodes[nodeName].fn(ctx, snapshot)
			if err == nil && res == nil {
				res = UpdateResult(nil)
			}
			outcomes[idx] = nodeOutcome{result: res, err: err}
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

func (g *Graph) nextFrontier(state State, frontier []string) ([]string, error) {
	var next []string
	seen := make(map[string]bool)
	add := func(target string) {
		if target == End || seen[target] {
			return
		}
		seen[target] = true
		next = append(next, target)
	}

	for _, name := range frontier {
		n := g.nodes[name]
		if n.decision != nil {
			label := n.decision(state)
			target, ok := n.labels[label]
			if !ok {
				return nil, &RoutingError{Node: name, Label: label}
			}
			add(target)
			continue
		}
		for _, target := range n.targets {
			add(target)
		}
	}
	return next, nil
}

// saveCheckpoint deep-copies and persists. Store failures degrade the
// durability guarantee but never fail the run.
func (g *Graph) saveCheckpoint(ctx context.Context, threadID string, state State, next []string) {
	cp := &Checkpoint{
		ThreadID:  threadID,
		State:     state.Clone(),
		Next:      append([]string(nil), next...),
		UpdatedAt: time.Now().UTC(),
	}
	if err := g.store.Put(ctx, threadID, cp); err != nil {
		telemetry.RecordSpanError(ctx, err)
		g.logger.Warn("Checkpoint write failed, run continues", map[string]interface{}{
			"thread_id": threadID,
			"error":     err.Error(),
		})
	}
}
