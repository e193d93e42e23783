package history

import (
	"context"
	"fmt"
	"time"

	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
)

// ForwardFunc receives every non-suppressed event, in order. The wire
// transport (websocket, SSE, stdout) plugs in here.
type ForwardFunc func(ev events.Event) error

// Bridge drains one run's event stream into the history store.
// Transient events (chunks, status, tool call previews) are forwarded
// but never persisted. Durable events are persisted with strictly
// increasing sequence numbers, then forwarded.
type Bridge struct {
	store    Store
	forward  ForwardFunc
	logger   core.Logger
	timeout  time.Duration
	threadID string
	runID    string

	// suppressApproval drops stale plan_pending_approval redeliveries
	// that follow an approved or rejected resume.
	suppressApproval bool

	lastApprovalContent string
}

// BridgeOption configures a Bridge
type BridgeOption func(*Bridge)

// WithForward sets the wire transport hook
func WithForward(fn ForwardFunc) BridgeOption {
	return func(b *Bridge) { b.forward = fn }
}

// WithLogger sets the bridge logger
func WithLogger(logger core.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTimeout bounds the wait for each next event
func WithTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.timeout = d }
}

// WithSuppressPendingApproval drops plan approval events for this run.
// Used when resuming with a final decision, where the graph may replay
// the pending-approval emission it never got to deliver.
func WithSuppressPendingApproval() BridgeOption {
	return func(b *Bridge) { b.suppressApproval = true }
}

// NewBridge creates a Bridge for one run of one thread.
func NewBridge(store Store, threadID, runID string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:    store,
		logger:   &core.NoOpLogger{},
		timeout:  120 * time.Second,
		threadID: threadID,
		runID:    runID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run consumes the stream until the done sentinel, the channel closes,
// the context is canceled, or no event arrives within the timeout.
func (b *Bridge) Run(ctx context.Context, stream <-chan events.Event) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.timeout)

		select {
		case <-ctx.Done():
			return fmt.Errorf("history bridge: %w", core.ErrContextCanceled)
		case <-timer.C:
			b.logger.Error("Event stream stalled", map[string]interface{}{
				"thread_id": b.threadID,
				"run_id":    b.runID,
				"timeout":   b.timeout.String(),
			})
			return fmt.Errorf("history bridge: %w", core.ErrTimeout)
		case ev, ok := <-stream:
			if !ok || ev.Type == events.TypeDone {
				return nil
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev events.Event) {
	if ev.Type == events.TypePlanPendingApproval {
		if b.suppressApproval {
			return
		}
		// The same pending plan can be re-emitted when a node is
		// re-entered; an identical consecutive request is a replay.
		if ev.Content == b.lastApprovalContent {
			return
		}
		b.lastApprovalContent = ev.Content
	}

	if !ev.Transient() {
		entry := entryFromEvent(b.threadID, b.runID, ev)
		if err := b.store.Append(ctx, entry); err != nil {
			b.logger.Error("History append failed, event forwarded anyway", map[string]interface{}{
				"thread_id":  b.threadID,
				"event_type": string(ev.Type),
				"error":      err.Error(),
			})
		}
	}

	if b.forward != nil {
		if err := b.forward(ev); err != nil {
			b.logger.Warn("Event forward failed", map[string]interface{}{
				"thread_id":  b.threadID,
				"event_type": string(ev.Type),
				"error":      err.Error(),
			})
		}
	}
}

func entryFromEvent(threadID, runID string, ev events.Event) *Entry {
	role := "assistant"
	if ev.Type == events.TypeArtifact || ev.Type == events.TypeCritiqueDocument ||
		ev.Type == events.TypeDraftUpdated || ev.Type == events.TypePlanPendingApproval {
		role = "system"
	}
	return &Entry{
		ThreadID:  threadID,
		RunID:     runID,
		ItemType:  string(ev.Type),
		Role:      role,
		AgentName: ev.Agent,
		Content:   ev.Content,
		ToolName:  ev.ToolName,
		ToolArgs:  ev.ToolArgs,
		ToolOut:   ev.ToolOutput,
		Artifact:  ev.ArtifactType,
		Iteration: ev.Iteration,
		Version:   ev.Version,
		CreatedAt: ev.Timestamp,
	}
}
