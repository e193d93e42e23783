package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/history"
	"github.com/naveenvasou/cerina-v0/llm"
	"github.com/naveenvasou/cerina-v0/tools"
)

// Status of a workflow thread.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusRunning          Status = "running"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusResumable        Status = "resumable"
	StatusCompleted        Status = "completed"
)

// Approval is the human answer to a pending plan.
type Approval struct {
	Decision string
	Feedback string
}

// Validate rejects decisions outside the protocol.
func (a Approval) Validate() error {
	switch a.Decision {
	case agents.DecisionApproved, agents.DecisionRevised, agents.DecisionRejected:
		return nil
	}
	return fmt.Errorf("%w: decision must be approved, revised, or rejected", core.ErrInvalidConfiguration)
}

// Outcome is what a run or resume returns to the caller.
type Outcome struct {
	RunID     string
	ThreadID  string
	Completed bool
	// AwaitingApproval carries the interrupt payload when the run
	// suspended at the plan approval gate.
	AwaitingApproval map[string]any
	// FinalPresentation is set when the run produced an exercise.
	FinalPresentation string
	// Messages are the assistant messages produced by this run.
	Messages []string
}

// Runner owns thread lifecycle: one active run per thread, cooperative
// stop, resume with a decision, resume from checkpoint after a stop.
type Runner struct {
	provider    llm.Provider
	tools       *tools.Registry
	checkpoints graph.CheckpointStore
	history     history.Store
	logger      core.Logger
	cfg         *core.Config

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRunner creates a Runner.
func NewRunner(provider llm.Provider, registry *tools.Registry, checkpoints graph.CheckpointStore, historyStore history.Store, logger core.Logger, cfg *core.Config) *Runner {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	return &Runner{
		provider:    provider,
		tools:       registry,
		checkpoints: checkpoints,
		history:     historyStore,
		logger:      logger,
		cfg:         cfg,
		active:      make(map[string]context.CancelFunc),
	}
}

// Run starts a fresh run for a thread. Events flow through the bridge
// to the history store and the optional forward hook. Returns once the
// run completes, suspends for approval, or fails.
func (r *Runner) Run(ctx context.Context, threadID, query string, forward history.ForwardFunc) (*Outcome, error) {
	if err := r.history.Append(ctx, &history.Entry{
		ThreadID: threadID,
		ItemType: string(events.TypeMessage),
		Role:     "user",
		Content:  query,
	}); err != nil {
		r.logger.Warn("User message not persisted", map[string]interface{}{
			"thread_id": threadID,
			"error":     err.Error(),
		})
	}

	initial := graph.State{
		agents.KeyQuery: query,
		agents.KeyMessages: []any{map[string]any{
			"role":    "user",
			"content": query,
		}},
	}
	r.carryForward(ctx, threadID, initial)
	return r.execute(ctx, threadID, forward, false, func(runCtx context.Context, g *graph.Graph) (*graph.Result, error) {
		return g.Invoke(runCtx, initial, threadID)
	})
}

// carryForward seeds a new run with the durable artifacts of the
// thread's last completed run, so a returning user can route straight
// to drafting against an already approved plan.
func (r *Runner) carryForward(ctx context.Context, threadID string, initial graph.State) {
	cp, err := r.checkpoints.Get(ctx, threadID)
	if err != nil || len(cp.Next) != 0 {
		return
	}
	for _, key := range []string{agents.KeyPlan, agents.KeyProtocolContract} {
		if v, ok := cp.State[key]; ok {
			initial[key] = v
		}
	}
}

// Resume answers a pending plan approval and continues the run.
func (r *Runner) Resume(ctx context.Context, threadID string, approval Approval, forward history.ForwardFunc) (*Outcome, error) {
	if err := approval.Validate(); err != nil {
		return nil, err
	}

	// A final decision means any replayed approval request is stale.
	suppress := approval.Decision != agents.DecisionRevised

	resumeValue := map[string]any{
		"decision": approval.Decision,
		"feedback": approval.Feedback,
	}
	return r.execute(ctx, threadID, forward, suppress, func(runCtx context.Context, g *graph.Graph) (*graph.Result, error) {
		return g.Resume(runCtx, threadID, resumeValue)
	})
}

// ResumeFromCheckpoint continues a stopped run from its last completed
// super-step.
func (r *Runner) ResumeFromCheckpoint(ctx context.Context, threadID string, forward history.ForwardFunc) (*Outcome, error) {
	return r.execute(ctx, threadID, forward, false, func(runCtx context.Context, g *graph.Graph) (*graph.Result, error) {
		return g.ResumeFromCheckpoint(runCtx, threadID)
	})
}

// Stop cancels a thread's active run. The checkpoint from the last
// completed super-step is preserved, so the thread stays resumable.
func (r *Runner) Stop(threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.active[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, core.ErrWorkflowNotFound)
	}
	cancel()
	return nil
}

// Status reports where a thread stands.
func (r *Runner) Status(ctx context.Context, threadID string) (Status, error) {
	r.mu.Lock()
	_, running := r.active[threadID]
	r.mu.Unlock()
	if running {
		return StatusRunning, nil
	}

	cp, err := r.checkpoints.Get(ctx, threadID)
	if err != nil {
		if core.IsRecoverable(err) {
			return StatusIdle, nil
		}
		return StatusIdle, err
	}
	if len(cp.Next) == 0 {
		return StatusCompleted, nil
	}
	for _, next := range cp.Next {
		if next == NodeAwaitApproval && cp.State.GetBool(agents.KeyHITLPending) {
			return StatusAwaitingApproval, nil
		}
	}
	return StatusResumable, nil
}

// History returns the thread's durable timeline.
func (r *Runner) History(ctx context.Context, threadID string) ([]history.Entry, error) {
	return r.history.List(ctx, threadID)
}

func (r *Runner) execute(ctx context.Context, threadID string, forward history.ForwardFunc, suppressApproval bool, invoke func(context.Context, *graph.Graph) (*graph.Result, error)) (*Outcome, error) {
	runCtx, cancel, err := r.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer r.release(threadID, cancel)

	runID := uuid.NewString()
	emitter := events.NewChannel(r.cfg.EventBufferSize, events.WithLogger(r.logger))

	bridgeOpts := []history.BridgeOption{
		history.WithLogger(r.logger),
		history.WithTimeout(r.cfg.ConsumerTimeout),
	}
	if forward != nil {
		bridgeOpts = append(bridgeOpts, history.WithForward(forward))
	}
	if suppressApproval {
		bridgeOpts = append(bridgeOpts, history.WithSuppressPendingApproval())
	}
	bridge := history.NewBridge(r.history, threadID, runID, bridgeOpts...)

	bridgeDone := make(chan error, 1)
	// The bridge outlives run cancellation so buffered events drain.
	go func() {
		bridgeDone <- bridge.Run(context.Background(), emitter.Events())
	}()

	g, err := Build(Deps{
		Provider:    r.provider,
		Tools:       r.tools,
		Emitter:     emitter,
		Logger:      r.logger,
		Config:      r.cfg,
		Checkpoints: r.checkpoints,
	})
	if err != nil {
		emitter.Close()
		<-bridgeDone
		return nil, err
	}

	r.logger.Info("Workflow run started", map[string]interface{}{
		"thread_id": threadID,
		"run_id":    runID,
	})
	started := time.Now()

	res, runErr := invoke(runCtx, g)

	emitter.Done()
	emitter.Close()
	if berr := <-bridgeDone; berr != nil {
		r.logger.Warn("History bridge ended abnormally", map[string]interface{}{
			"thread_id": threadID,
			"error":     berr.Error(),
		})
	}

	if runErr != nil {
		r.logger.Error("Workflow run failed", map[string]interface{}{
			"thread_id": threadID,
			"run_id":    runID,
			"elapsed":   time.Since(started).String(),
			"error":     runErr.Error(),
		})
		return nil, runErr
	}

	outcome := &Outcome{
		RunID:    runID,
		ThreadID: threadID,
	}
	if res.Interrupt != nil {
		outcome.AwaitingApproval = res.Interrupt.Payload
	} else {
		outcome.Completed = true
		outcome.FinalPresentation = res.State.GetString(agents.KeyFinalPresentation)
		outcome.Messages = assistantMessages(res.State)
	}

	r.logger.Info("Workflow run finished", map[string]interface{}{
		"thread_id": threadID,
		"run_id":    runID,
		"completed": outcome.Completed,
		"elapsed":   time.Since(started).String(),
	})
	return outcome, nil
}

func (r *Runner) acquire(ctx context.Context, threadID string) (context.Context, context.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[threadID]; exists {
		return nil, nil, fmt.Errorf("thread %s: %w", threadID, core.ErrWorkflowRunning)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.active[threadID] = cancel
	return runCtx, cancel, nil
}

func (r *Runner) release(threadID string, cancel context.CancelFunc) {
	cancel()
	r.mu.Lock()
	delete(r.active, threadID)
	r.mu.Unlock()
}

func assistantMessages(s graph.State) []string {
	var out []string
	for _, item := range s.GetList(agents.KeyMessages) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if role, _ := m["role"].(string); role != "assistant" {
			continue
		}
		if content, _ := m["content"].(string); content != "" {
			out = append(out, content)
		}
	}
	return out
}
