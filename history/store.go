// Package history persists the durable timeline of a workflow thread.
// The Bridge consumes a run's event stream, filters transient signal,
// and appends the rest with strictly increasing sequence numbers.
package history

import (
	"context"
	"time"
)

// Entry is one durable item on a thread's timeline.
type Entry struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	RunID     string         `json:"run_id,omitempty"`
	Sequence  int64          `json:"sequence"`
	ItemType  string         `json:"item_type"`
	Role      string         `json:"role,omitempty"`
	AgentName string         `json:"agent_name,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolArgs  map[string]any `json:"tool_args,omitempty"`
	ToolOut   string         `json:"tool_output,omitempty"`
	Artifact  string         `json:"artifact_type,omitempty"`
	Iteration int            `json:"iteration,omitempty"`
	Version   int            `json:"version,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store persists timeline entries per thread. Append assigns the
// entry's sequence number atomically; sequences are strictly
// increasing within a thread and never reused.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, threadID string) ([]Entry, error)
}
